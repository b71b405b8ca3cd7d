package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

// DefaultOutputName SaveOutput 未指定文件名时使用
const DefaultOutputName = "output.md"

// Artifacts 单次运行的文件产物目录 <output_dir>/<run_id>/
// 各阶段之间通过这里的 JSON 与 Markdown 文件交接。
type Artifacts struct {
	dir   string
	files config.FilesConfig
}

// NewArtifacts 创建运行目录的产物存储，目录在首次写入时创建
func NewArtifacts(outputDir, runID string, files config.FilesConfig) *Artifacts {
	return &Artifacts{dir: filepath.Join(outputDir, runID), files: files}
}

// Dir 运行目录
func (a *Artifacts) Dir() string { return a.dir }

// SaveBriefs 写入研究简报列表
func (a *Artifacts) SaveBriefs(briefs []model.ResearchBrief) (string, error) {
	data, err := json.MarshalIndent(briefs, "", "  ")
	if err != nil {
		return "", errcode.Internal(err, "encode research briefs")
	}
	return a.write(a.files.Briefs, data)
}

// LoadBriefs 读取研究简报，兼容单个对象与列表两种格式
func (a *Artifacts) LoadBriefs() ([]model.ResearchBrief, error) {
	data, err := a.read(a.files.Briefs)
	if err != nil {
		return nil, err
	}

	var briefs []model.ResearchBrief
	if err := decodeOneOrMany(data, &briefs); err != nil {
		return nil, errcode.Internal(err, "decode %s", a.files.Briefs)
	}
	if len(briefs) == 0 {
		return nil, errcode.PreconditionMissing(nil, "no research briefs in %s", a.path(a.files.Briefs))
	}
	return briefs, nil
}

// LoadBrief 读取编号为 blogNumber 的简报，0 表示第一份
func (a *Artifacts) LoadBrief(blogNumber int) (model.ResearchBrief, error) {
	briefs, err := a.LoadBriefs()
	if err != nil {
		return model.ResearchBrief{}, err
	}
	if blogNumber == 0 {
		return briefs[0], nil
	}
	for _, b := range briefs {
		if b.BlogNumber == blogNumber {
			return b, nil
		}
	}
	return model.ResearchBrief{}, errcode.PreconditionMissing(nil, "research brief #%d not found in %s", blogNumber, a.path(a.files.Briefs))
}

// LoadSummary 读取可选的补充上下文，文件不存在时返回 nil
func (a *Artifacts) LoadSummary() (*model.ContentSummary, error) {
	data, err := os.ReadFile(a.path(a.files.Summary))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errcode.Internal(err, "read %s", a.files.Summary)
	}

	var summaries []model.ContentSummary
	if err := decodeOneOrMany(data, &summaries); err != nil {
		return nil, errcode.Internal(err, "decode %s", a.files.Summary)
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

// SaveSummary 写入补充上下文
func (a *Artifacts) SaveSummary(summary model.ContentSummary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", errcode.Internal(err, "encode summary")
	}
	return a.write(a.files.Summary, data)
}

// SaveArticle 写入文章草稿
func (a *Artifacts) SaveArticle(content string) (string, error) {
	return a.write(a.files.Article, []byte(content))
}

// LoadArticle 读取文章草稿
func (a *Artifacts) LoadArticle() (string, error) {
	data, err := a.read(a.files.Article)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveBranded 写入品牌评估后的文章
func (a *Artifacts) SaveBranded(content string) (string, error) {
	return a.write(a.files.Branded, []byte(content))
}

// SaveOutput 以指定文件名保存用户确认的内容，name 只取基本文件名
func (a *Artifacts) SaveOutput(name, content string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultOutputName
	}
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", errcode.Validation("invalid output file name %q", name)
	}
	if filepath.Ext(base) == "" {
		base += ".md"
	}
	return a.write(base, []byte(content))
}

// ListArticles 列出运行目录下所有 Markdown 文件，按文件名排序
func (a *Artifacts) ListArticles() ([]model.ArticleFile, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.ArticleFile{}, nil
	}
	if err != nil {
		return nil, errcode.Internal(err, "list %s", a.dir)
	}

	articles := make([]model.ArticleFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, e.Name()))
		if err != nil {
			return nil, errcode.Internal(err, "read %s", e.Name())
		}
		articles = append(articles, model.ArticleFile{Filename: e.Name(), Content: string(data)})
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].Filename < articles[j].Filename })
	return articles, nil
}

func (a *Artifacts) path(name string) string {
	return filepath.Join(a.dir, name)
}

func (a *Artifacts) write(name string, data []byte) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", errcode.Internal(err, "create output directory %s", a.dir)
	}
	p := a.path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", errcode.Internal(err, "write %s", p)
	}
	return p, nil
}

// read 读取前置产物，不存在时返回 PRECONDITION_MISSING
func (a *Artifacts) read(name string) ([]byte, error) {
	p := a.path(name)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errcode.PreconditionMissing(err, "missing %s: %s", name, p)
	}
	if err != nil {
		return nil, errcode.Internal(err, "read %s", p)
	}
	return data, nil
}

// decodeOneOrMany 将 JSON 对象或数组统一解析为切片
func decodeOneOrMany[T any](data []byte, out *[]T) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(data, out)
	}
	if strings.HasPrefix(trimmed, "{") {
		// 兼容 {"research_briefs": [...]} 的包裹格式
		var wrapped struct {
			Briefs []json.RawMessage `json:"research_briefs"`
		}
		if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Briefs) > 0 {
			items := make([]T, len(wrapped.Briefs))
			for i, raw := range wrapped.Briefs {
				if err := json.Unmarshal(raw, &items[i]); err != nil {
					return err
				}
			}
			*out = items
			return nil
		}
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*out = []T{one}
		return nil
	}
	return fmt.Errorf("expected JSON object or array")
}

// ForBlog 返回第 n 篇文章使用的产物存储，n > 0 时文章文件名带上编号
// 例如 article.md -> article-2.md；简报与补充上下文文件共用。
func (a *Artifacts) ForBlog(n int) *Artifacts {
	if n <= 0 {
		return a
	}
	files := a.files
	files.Article = numbered(files.Article, n)
	files.Branded = numbered(files.Branded, n)
	return &Artifacts{dir: a.dir, files: files}
}

func numbered(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// LoadBranded 读取品牌评估后的文章
func (a *Artifacts) LoadBranded() (string, error) {
	data, err := a.read(a.files.Branded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
