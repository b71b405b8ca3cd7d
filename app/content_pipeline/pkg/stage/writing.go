package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/jsonx"
)

// OutlineInput 大纲生成输入
type OutlineInput struct {
	Topic             string
	PrimaryKeyword    string
	SecondaryKeywords []string
	Context           string
	KeyPoints         []string
}

// DraftInput 正文写作输入
type DraftInput struct {
	Topic             string
	PrimaryKeyword    string
	SecondaryKeywords []string
	Sections          []string
	WordCount         int
	Context           string
	KeyPoints         []string
	Tone              string
}

// Outline 生成文章章节标题，失败时降级为 fallback
func (s *Stages) Outline(ctx context.Context, in OutlineInput, fallback []string) (Result[[]string], error) {
	prompt := fmt.Sprintf(`Create a blog outline by COMBINING SEO research and content context.

Topic: %s

Primary keyword: %s
Secondary keywords: %s

Context summary:
%s

Important points to cover:
%s

Rules:
- Informational
- Context-aware (not generic SEO)
- Logical learning flow
- No marketing fluff

Return ONLY JSON:
{
  "sections": []
}`, in.Topic, in.PrimaryKeyword, strings.Join(in.SecondaryKeywords, ", "), in.Context, strings.Join(in.KeyPoints, "; "))

	reply, err := s.call(ctx, NameOutline, prompt, "Return clean JSON only", 0.4)
	if err != nil {
		return Result[[]string]{}, err
	}

	var payload struct {
		Sections []string `json:"sections"`
	}
	if err := jsonx.Decode(reply, &payload); err != nil {
		return degrade(s, NameOutline, fallback, err), nil
	}
	sections := make([]string, 0, len(payload.Sections))
	for _, sec := range payload.Sections {
		if sec = strings.TrimSpace(sec); sec != "" {
			sections = append(sections, sec)
		}
	}
	if len(sections) == 0 {
		return degrade(s, NameOutline, fallback, fmt.Errorf("no sections in model response")), nil
	}
	s.succeed(NameOutline)
	return ok(sections), nil
}

// Draft 按大纲写出 Markdown 正文，模型返回空内容时降级为骨架文章
func (s *Stages) Draft(ctx context.Context, in DraftInput) (Result[string], error) {
	tone := in.Tone
	if tone == "" {
		tone = "Informational"
	}
	prompt := fmt.Sprintf(`Write an INFORMATIONAL blog article in Markdown.

Tone:
%s

Context to respect:
%s

Important focus points:
%s

SEO Requirements:
Primary keyword: %s
Secondary keywords: %s

Topic: %s

Sections:
%s

Target length: %d words

Rules:
- Human natural writing
- No AI fillers
- Context > keyword stuffing
- Examples where relevant

Return ONLY article content.`, tone, in.Context, strings.Join(in.KeyPoints, "; "), in.PrimaryKeyword,
		strings.Join(in.SecondaryKeywords, ", "), in.Topic, strings.Join(in.Sections, "\n"), in.WordCount)

	reply, err := s.call(ctx, NameWrite, prompt, "Expert contextual SEO writer", 0.65)
	if err != nil {
		return Result[string]{}, err
	}

	article := stripFence(reply)
	if article == "" {
		return degrade(s, NameWrite, SkeletonArticle(in.Topic, in.Sections), fmt.Errorf("empty article")), nil
	}
	s.succeed(NameWrite)
	return ok(article), nil
}

// SkeletonArticle 由标题与章节拼出的骨架文章
func SkeletonArticle(topic string, sections []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", topic)
	for _, sec := range sections {
		fmt.Fprintf(&sb, "\n## %s\n", sec)
	}
	return sb.String()
}
