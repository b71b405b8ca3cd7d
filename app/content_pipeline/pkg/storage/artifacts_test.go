package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

var testFiles = config.FilesConfig{
	Briefs:  "research_briefs.json",
	Summary: "summary.json",
	Article: "article.md",
	Branded: "article_branded.md",
}

func TestArtifacts_BriefsRoundTrip(t *testing.T) {
	a := NewArtifacts(t.TempDir(), "run-1", testFiles)
	briefs := []model.ResearchBrief{
		{BlogNumber: 1, BlogAngle: "Limits", PrimaryKeyword: "kids screen time", RecommendedWordCount: 1500},
		{BlogNumber: 2, BlogAngle: "Sleep", PrimaryKeyword: "screen time sleep", RecommendedWordCount: 1200},
	}

	path, err := a.SaveBriefs(briefs)
	if err != nil {
		t.Fatalf("SaveBriefs() error = %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "run-1" {
		t.Errorf("briefs should be saved under the run directory, got %s", path)
	}

	got, err := a.LoadBrief(2)
	if err != nil {
		t.Fatalf("LoadBrief(2) error = %v", err)
	}
	if diff := cmp.Diff(briefs[1], got); diff != "" {
		t.Errorf("LoadBrief(2) mismatch (-want +got):\n%s", diff)
	}

	first, err := a.LoadBrief(0)
	if err != nil || first.BlogNumber != 1 {
		t.Errorf("LoadBrief(0) = %+v, %v", first, err)
	}

	if _, err := a.LoadBrief(3); !errcode.IsPreconditionMissing(err) {
		t.Errorf("LoadBrief(3) error = %v, want precondition missing", err)
	}
}

func TestArtifacts_LoadBriefs_Formats(t *testing.T) {
	cases := map[string]string{
		"object":  `{"blog_number": 1, "primary_keyword": "kw", "recommended_word_count": "1,800 words"}`,
		"wrapped": `{"research_briefs": [{"blog_number": 1, "primary_keyword": "kw", "recommended_word_count": 1800}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			a := NewArtifacts(t.TempDir(), "r", testFiles)
			if err := os.MkdirAll(a.Dir(), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(a.Dir(), testFiles.Briefs), []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			briefs, err := a.LoadBriefs()
			if err != nil {
				t.Fatalf("LoadBriefs() error = %v", err)
			}
			if len(briefs) != 1 || briefs[0].PrimaryKeyword != "kw" || briefs[0].RecommendedWordCount != 1800 {
				t.Errorf("LoadBriefs() = %+v", briefs)
			}
		})
	}
}

func TestArtifacts_MissingPreconditions(t *testing.T) {
	a := NewArtifacts(t.TempDir(), "empty", testFiles)

	if _, err := a.LoadBriefs(); !errcode.IsPreconditionMissing(err) {
		t.Errorf("LoadBriefs() error = %v", err)
	}
	if _, err := a.LoadArticle(); !errcode.IsPreconditionMissing(err) {
		t.Errorf("LoadArticle() error = %v", err)
	}
	summary, err := a.LoadSummary()
	if err != nil || summary != nil {
		t.Errorf("LoadSummary() = %v, %v; want nil, nil", summary, err)
	}
	list, err := a.ListArticles()
	if err != nil || len(list) != 0 {
		t.Errorf("ListArticles() = %v, %v", list, err)
	}
}

func TestArtifacts_ArticlesAndOutput(t *testing.T) {
	a := NewArtifacts(t.TempDir(), "run-2", testFiles)

	if _, err := a.SaveArticle("# Draft"); err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	if _, err := a.SaveBranded("# Branded"); err != nil {
		t.Fatalf("SaveBranded() error = %v", err)
	}
	if _, err := a.SaveOutput("", "# Final"); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}
	if _, err := a.SaveOutput("notes", "# Notes"); err != nil {
		t.Fatalf("SaveOutput(notes) error = %v", err)
	}
	if _, err := a.SaveOutput("../escape.md", "x"); !errcode.IsValidation(err) {
		t.Errorf("SaveOutput(../escape.md) error = %v, want validation", err)
	}
	if _, err := a.SaveSummary(model.ContentSummary{Context: "ctx"}); err != nil {
		t.Fatalf("SaveSummary() error = %v", err)
	}

	got, err := a.LoadArticle()
	if err != nil || got != "# Draft" {
		t.Errorf("LoadArticle() = %q, %v", got, err)
	}

	list, err := a.ListArticles()
	if err != nil {
		t.Fatalf("ListArticles() error = %v", err)
	}
	want := []model.ArticleFile{
		{Filename: "article.md", Content: "# Draft"},
		{Filename: "article_branded.md", Content: "# Branded"},
		{Filename: "notes.md", Content: "# Notes"},
		{Filename: "output.md", Content: "# Final"},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("ListArticles() mismatch (-want +got):\n%s", diff)
	}

	summary, err := a.LoadSummary()
	if err != nil || summary == nil || summary.Context != "ctx" {
		t.Errorf("LoadSummary() = %+v, %v", summary, err)
	}
}

func TestArtifacts_ForBlog(t *testing.T) {
	a := NewArtifacts(t.TempDir(), "run-3", testFiles)
	if a.ForBlog(0) != a {
		t.Error("ForBlog(0) should return the same store")
	}

	p, err := a.ForBlog(2).SaveArticle("# Second")
	if err != nil {
		t.Fatalf("SaveArticle() error = %v", err)
	}
	if filepath.Base(p) != "article-2.md" {
		t.Errorf("path = %s, want article-2.md", p)
	}
	if _, err := a.LoadArticle(); !errcode.IsPreconditionMissing(err) {
		t.Error("blog 2 article should not be visible as the default article")
	}
	if _, err := a.ForBlog(2).SaveBranded("# B"); err != nil {
		t.Fatal(err)
	}
	got, err := a.ForBlog(2).LoadBranded()
	if err != nil || got != "# B" {
		t.Errorf("LoadBranded() = %q, %v", got, err)
	}
}
