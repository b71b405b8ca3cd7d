package writer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

var (
	// ErrAlreadySet 字段已填充，不允许覆盖
	ErrAlreadySet = errors.New("article state field already set")
	// ErrOutOfOrder 违反 sections -> article -> done 的填充顺序
	ErrOutOfOrder = errors.New("article state fields must be set in order: sections, article, done")
	// ErrEmptyValue 填充值为空
	ErrEmptyValue = errors.New("article state value is empty")
)

// ArticleState 单篇文章的写作状态
// 简报只读；sections、article、done 严格按顺序填充，填充后不再重置。
type ArticleState struct {
	brief   model.ResearchBrief
	summary model.ContentSummary
	topic   string

	sections []string
	article  string
	done     bool
}

// NewArticleState 基于简报与可选的补充上下文创建状态
func NewArticleState(brief model.ResearchBrief, summary *model.ContentSummary) *ArticleState {
	s := &ArticleState{brief: brief}
	if summary != nil {
		s.summary = *summary
	}
	s.topic = deriveTopic(brief, s.summary)
	return s
}

// deriveTopic 标题优先级：简报 topic > summary topic_override > "<主关键词> Explained Clearly"
func deriveTopic(brief model.ResearchBrief, summary model.ContentSummary) string {
	if t := strings.TrimSpace(brief.Topic); t != "" {
		return t
	}
	if t := strings.TrimSpace(summary.TopicOverride); t != "" {
		return t
	}
	return titleCase(brief.PrimaryKeyword) + " Explained Clearly"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func (s *ArticleState) Brief() model.ResearchBrief { return s.brief }
func (s *ArticleState) Summary() model.ContentSummary { return s.summary }
func (s *ArticleState) Topic() string { return s.topic }
func (s *ArticleState) Article() string { return s.article }
func (s *ArticleState) Done() bool { return s.done }
func (s *ArticleState) HasSections() bool { return len(s.sections) > 0 }
func (s *ArticleState) HasArticle() bool { return s.article != "" }
func (s *ArticleState) WordCount() int { return s.brief.RecommendedWordCount.OrDefault() }

// Sections 返回章节副本
func (s *ArticleState) Sections() []string {
	return append([]string(nil), s.sections...)
}

// SetSections 填充章节
func (s *ArticleState) SetSections(sections []string) error {
	if s.HasSections() {
		return ErrAlreadySet
	}
	if len(sections) == 0 {
		return ErrEmptyValue
	}
	s.sections = append([]string(nil), sections...)
	return nil
}

// SetArticle 填充正文，要求章节已存在
func (s *ArticleState) SetArticle(article string) error {
	if s.HasArticle() {
		return ErrAlreadySet
	}
	if !s.HasSections() {
		return ErrOutOfOrder
	}
	if strings.TrimSpace(article) == "" {
		return ErrEmptyValue
	}
	s.article = article
	return nil
}

// MarkDone 标记完成，要求正文已存在
func (s *ArticleState) MarkDone() error {
	if s.done {
		return ErrAlreadySet
	}
	if !s.HasArticle() {
		return ErrOutOfOrder
	}
	s.done = true
	return nil
}
