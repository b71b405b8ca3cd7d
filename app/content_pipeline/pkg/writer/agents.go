package writer

import (
	"context"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/stage"
)

// Agent 对 ArticleState 执行一步修改，已有输出时不做任何事
type Agent interface {
	Act(ctx context.Context, s *ArticleState) error
}

// ArticleSink 文章持久化目标
type ArticleSink interface {
	SaveArticle(content string) (string, error)
}

// OutlineAgent 生成章节
type OutlineAgent struct {
	stages *stage.Stages
}

func (a *OutlineAgent) Act(ctx context.Context, s *ArticleState) error {
	if s.HasSections() {
		return nil
	}

	logger.Log.Info("正在结合研究简报与补充上下文生成大纲...")
	brief, summary := s.Brief(), s.Summary()
	res, err := a.stages.Outline(ctx, stage.OutlineInput{
		Topic:             s.Topic(),
		PrimaryKeyword:    brief.PrimaryKeyword,
		SecondaryKeywords: brief.SecondaryKeywords,
		Context:           summary.Context,
		KeyPoints:         summary.KeyPoints,
	}, fallbackSections(s))
	if err != nil {
		return err
	}
	if err := s.SetSections(res.Value); err != nil {
		return err
	}
	logger.Log.Infof("大纲已生成，共 %d 个章节", len(res.Value))
	return nil
}

// fallbackSections 优先使用简报推荐结构，否则使用通用大纲
func fallbackSections(s *ArticleState) []string {
	if rs := s.Brief().RecommendedStructure; len(rs) > 0 {
		return rs
	}
	kw := s.Brief().PrimaryKeyword
	if kw == "" {
		kw = s.Topic()
	}
	return []string{
		"Introduction",
		"What Is " + titleCase(kw),
		"Key Things to Know",
		"Practical Tips",
		"Conclusion",
	}
}

// WritingAgent 写出正文
type WritingAgent struct {
	stages *stage.Stages
}

func (a *WritingAgent) Act(ctx context.Context, s *ArticleState) error {
	if s.HasArticle() {
		return nil
	}

	logger.Log.Info("正在撰写正文...")
	brief, summary := s.Brief(), s.Summary()
	res, err := a.stages.Draft(ctx, stage.DraftInput{
		Topic:             s.Topic(),
		PrimaryKeyword:    brief.PrimaryKeyword,
		SecondaryKeywords: brief.SecondaryKeywords,
		Sections:          s.Sections(),
		WordCount:         s.WordCount(),
		Context:           summary.Context,
		KeyPoints:         summary.KeyPoints,
		Tone:              summary.Tone,
	})
	if err != nil {
		return err
	}
	if err := s.SetArticle(res.Value); err != nil {
		return err
	}
	logger.Log.Info("正文已生成")
	return nil
}

// OutputAgent 保存文章并标记完成
type OutputAgent struct {
	sink ArticleSink
}

func (a *OutputAgent) Act(ctx context.Context, s *ArticleState) error {
	if s.Done() {
		return nil
	}
	path, err := a.sink.SaveArticle(s.Article())
	if err != nil {
		return err
	}
	if err := s.MarkDone(); err != nil {
		return err
	}
	logger.Log.Infof("文章已保存: %s", path)
	return nil
}

// AgentFunc 函数适配为 Agent
type AgentFunc func(ctx context.Context, s *ArticleState) error

func (f AgentFunc) Act(ctx context.Context, s *ArticleState) error { return f(ctx, s) }
