package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
)

// routingCaller 根据提示词内容返回对应阶段的回复
type routingCaller struct {
	mu     sync.Mutex
	scores []int
	calls  map[string]int
}

func (c *routingCaller) Call(ctx context.Context, prompt, role string, temperature float32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}

	switch {
	case strings.Contains(prompt, "Analyze the Google SERP"):
		c.calls["serp"]++
		return `{"serp_type": "informational", "top_domains": ["who.int"], "keyword_difficulty": "low", "ranking_probability": "high"}`, nil
	case strings.Contains(prompt, "DISTINCT blog angles"):
		c.calls["angles"]++
		return `{"angles": ["Healthy limits by age", "Screen time and sleep"]}`, nil
	case strings.Contains(prompt, "Generate SERP Research Brief"):
		c.calls["brief"]++
		n := c.calls["brief"]
		return fmt.Sprintf(`{"primary_keyword": "kids screen time %d", "secondary_keywords": [], "question_keywords": [], "content_angle": "angle %d", "recommended_structure": ["Intro"], "recommended_word_count": "1200", "ranking_feasibility": "high", "writing_instructions": "warm"}`, n, n), nil
	case strings.Contains(prompt, "Create a blog outline"):
		c.calls["outline"]++
		return `{"sections": ["Why it matters", "Tips"]}`, nil
	case strings.Contains(prompt, "Write an INFORMATIONAL"):
		c.calls["write"]++
		return fmt.Sprintf("# Draft %d\n\nBody", c.calls["write"]), nil
	case strings.Contains(prompt, "BRAND EVALUATION AGENT"):
		i := c.calls["tone"]
		c.calls["tone"]++
		score := 90
		if i < len(c.scores) {
			score = c.scores[i]
		}
		return fmt.Sprintf(`{"overall_score": %d, "breakdown": {}, "issues": ["issue"]}`, score), nil
	case strings.Contains(prompt, "User Feedback"):
		c.calls["refine"]++
		return "# Refined", nil
	case strings.Contains(prompt, "SENIOR BRAND EDITOR"):
		c.calls["rewrite"]++
		return "# Rewritten", nil
	}
	return "", fmt.Errorf("unexpected prompt: %.40s", prompt)
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	return &search.Response{Raw: json.RawMessage(`{"organic_results": []}`)}, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *fakeRecorder) CreateRun(ctx context.Context, runID string, rc model.ResearchContext) error {
	r.add("run:" + rc.Topic)
	return nil
}

func (r *fakeRecorder) SaveBriefs(ctx context.Context, runID string, briefs []model.ResearchBrief) error {
	r.add(fmt.Sprintf("briefs:%d", len(briefs)))
	return nil
}

func (r *fakeRecorder) SaveArticle(ctx context.Context, runID string, blogNumber int, content string) error {
	r.add(fmt.Sprintf("article:%d", blogNumber))
	return nil
}

func (r *fakeRecorder) UpdateBrandResult(ctx context.Context, runID string, blogNumber int, content string, accepted bool, report model.BrandReport) error {
	r.add(fmt.Sprintf("brand:%d:%v", blogNumber, accepted))
	return nil
}

func newTestEngine(t *testing.T, caller *routingCaller, rec Recorder) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Parse([]byte("pipeline:\n  output_dir: " + dir + "\n"))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	return New(cfg, Deps{Caller: caller, Searcher: fakeSearcher{}, Recorder: rec}), dir
}

var kidsContext = model.ResearchContext{Topic: "kids screen time", TargetAudience: "Indian parents", ContentGoal: "educate"}

func TestEngine_RunAll(t *testing.T) {
	caller := &routingCaller{scores: []int{40, 62, 85}}
	rec := &fakeRecorder{}
	e, dir := newTestEngine(t, caller, rec)

	res, err := e.RunAll(context.Background(), RunAllOptions{
		Research: ResearchOptions{Context: kidsContext, BlogCount: 2},
	})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	if len(res.Research.Output.Briefs) != 2 || len(res.Articles) != 2 || len(res.Brands) != 2 {
		t.Fatalf("RunAll() = %d briefs, %d articles, %d brands", len(res.Research.Output.Briefs), len(res.Articles), len(res.Brands))
	}
	// 第一篇 40 分，重写后 62 分通过；第二篇直接 85 分通过
	first := res.Brands[0].Outcome
	if !first.Accepted || first.Attempts != 1 || first.Article != "# Rewritten" {
		t.Errorf("first brand outcome = %+v", first)
	}
	if res.Brands[1].Outcome.Attempts != 0 {
		t.Errorf("second brand outcome = %+v", res.Brands[1].Outcome)
	}

	runDir := filepath.Join(dir, res.RunID)
	for _, name := range []string{"research_briefs.json", "article-1.md", "article-2.md", "article_branded-1.md", "article_branded-2.md"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	want := "run:kids screen time,briefs:2,article:1,brand:1:true,article:2,brand:2:true"
	if got := strings.Join(rec.events, ","); got != want {
		t.Errorf("recorder events = %s, want %s", got, want)
	}
}

func TestEngine_StepByStep(t *testing.T) {
	caller := &routingCaller{scores: []int{30, 30, 30, 30, 55, 70}}
	e, _ := newTestEngine(t, caller, nil)
	ctx := context.Background()

	r, err := e.Research(ctx, ResearchOptions{RunID: "run-1", Context: kidsContext, BlogCount: 1})
	if err != nil {
		t.Fatalf("Research() error = %v", err)
	}
	if r.RunID != "run-1" || r.Output.Briefs[0].BlogNumber != 1 {
		t.Fatalf("Research() = %+v", r)
	}

	w, err := e.Write(ctx, WriteOptions{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if w.Topic != "Kids Screen Time 1 Explained Clearly" || filepath.Base(w.Path) != "article.md" {
		t.Errorf("Write() = %+v", w)
	}

	b, err := e.Brand(ctx, BrandOptions{RunID: "run-1"})
	if err != nil {
		t.Fatalf("Brand() error = %v", err)
	}
	if b.Outcome.Accepted || b.Outcome.Attempts != 3 {
		t.Errorf("Brand() outcome = %+v, want rejected after 3 rewrites", b.Outcome)
	}

	ref, err := e.Refine(ctx, RefineOptions{RunID: "run-1", Suggestion: "shorter intro"})
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if ref.Outcome.Article != "# Refined" || ref.Outcome.InitialScore != 55 || ref.Outcome.FinalScore != 70 {
		t.Errorf("Refine() outcome = %+v", ref.Outcome)
	}

	if _, err := e.SaveOutput(ctx, "run-1", "", ref.Outcome.Article); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}
	list, err := e.Articles(ctx, "run-1")
	if err != nil {
		t.Fatalf("Articles() error = %v", err)
	}
	names := make([]string, 0, len(list))
	for _, a := range list {
		names = append(names, a.Filename)
	}
	if got := strings.Join(names, ","); got != "article.md,article_branded.md,output.md" {
		t.Errorf("Articles() = %s", got)
	}
}

func TestEngine_WriteFromFilesOnly(t *testing.T) {
	// 另一个进程写入的简报文件也能被读取
	caller := &routingCaller{}
	e, dir := newTestEngine(t, caller, nil)

	runDir := filepath.Join(dir, "manual")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	brief := `[{"blog_number": 1, "blog_angle": "Limits", "primary_keyword": "toddler sleep", "recommended_word_count": 900}]`
	if err := os.WriteFile(filepath.Join(runDir, "research_briefs.json"), []byte(brief), 0o644); err != nil {
		t.Fatal(err)
	}
	summary := `{"topic_override": "Sleep Routines for Toddlers", "context": "c", "key_points": ["p"], "tone": "Warm"}`
	if err := os.WriteFile(filepath.Join(runDir, "summary.json"), []byte(summary), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := e.Write(context.Background(), WriteOptions{RunID: "manual"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if w.Topic != "Sleep Routines for Toddlers" {
		t.Errorf("Topic = %q", w.Topic)
	}
}

func TestEngine_Errors(t *testing.T) {
	e, _ := newTestEngine(t, &routingCaller{}, nil)
	ctx := context.Background()

	if _, err := e.Write(ctx, WriteOptions{RunID: "missing"}); !errcode.IsPreconditionMissing(err) {
		t.Errorf("Write(missing) error = %v, want precondition missing", err)
	}
	if _, err := e.Brand(ctx, BrandOptions{RunID: "missing"}); !errcode.IsPreconditionMissing(err) {
		t.Errorf("Brand(missing) error = %v, want precondition missing", err)
	}
	if _, err := e.Write(ctx, WriteOptions{RunID: "../etc"}); !errcode.IsValidation(err) {
		t.Errorf("Write(../etc) error = %v, want validation", err)
	}
	if _, err := e.Refine(ctx, RefineOptions{RunID: "r"}); !errcode.IsValidation(err) {
		t.Errorf("Refine(no suggestion) error = %v, want validation", err)
	}
	if _, err := e.SaveOutput(ctx, "r", "out.md", " "); !errcode.IsValidation(err) {
		t.Errorf("SaveOutput(empty) error = %v, want validation", err)
	}
	if _, err := e.Research(ctx, ResearchOptions{Context: model.ResearchContext{Topic: "t"}}); !errcode.IsValidation(err) {
		t.Errorf("Research(no audience) error = %v, want validation", err)
	}
}

func TestEngine_Close(t *testing.T) {
	e, _ := newTestEngine(t, &routingCaller{}, nil)
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// 日志只包含文字，不带图标符号
func TestEngine_LogsPlainText(t *testing.T) {
	var buf bytes.Buffer
	out := logger.Log.Out
	logger.Log.SetOutput(&buf)
	t.Cleanup(func() { logger.Log.SetOutput(out) })

	e, _ := newTestEngine(t, &routingCaller{scores: []int{40, 85}}, nil)
	if _, err := e.RunAll(context.Background(), RunAllOptions{
		Research: ResearchOptions{Context: kidsContext, BlogCount: 1},
	}); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}

	if buf.Len() == 0 {
		t.Fatal("no log output captured")
	}
	for _, r := range buf.String() {
		if unicode.Is(unicode.So, r) {
			t.Fatalf("log output contains symbol %q:\n%s", r, buf.String())
		}
	}
}
