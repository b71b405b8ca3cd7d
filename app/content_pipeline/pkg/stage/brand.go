package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/jsonx"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

// IssueUnavailable 评分无法解析时写入的问题描述
const IssueUnavailable = "brand evaluation unavailable"

// DefaultBrandReport 评分失败时的默认报告
func DefaultBrandReport() model.BrandReport {
	return model.BrandReport{
		OverallScore: 0,
		Breakdown:    map[string]int{},
		Issues:       []string{IssueUnavailable},
	}
}

// toneReply 兼容两种评分格式：overall_score/breakdown/issues 与 tone_match_score/analysis
type toneReply struct {
	OverallScore   *flexNumber           `json:"overall_score"`
	Breakdown      map[string]flexNumber `json:"breakdown"`
	Issues         []string              `json:"issues"`
	ToneMatchScore *flexNumber           `json:"tone_match_score"`
	Analysis       string                `json:"analysis"`
}

// ScoreTone 按品牌调性为文章打分，分数限定在 0..100
func (s *Stages) ScoreTone(ctx context.Context, article, voice string, brief model.ResearchBrief) (Result[model.BrandReport], error) {
	prompt := fmt.Sprintf(`You are a strict BRAND EVALUATION AGENT.

Brand Voice Guidelines:
%s

Research Direction:
%s

Article Content:
%s

Evaluate on a 0-100 scale:

1. Tone match
2. Audience alignment
3. SEO keyword usage
4. Informational clarity (NO selling)
5. Brand consistency

Return ONLY valid JSON:
{
  "overall_score": number,
  "breakdown": {
    "tone": number,
    "audience": number,
    "keywords": number,
    "clarity": number,
    "consistency": number
  },
  "issues": [
    "clear short issue 1",
    "clear short issue 2"
  ]
}`, voice, toJSON(brief), truncate(article, toneArticleCap))

	reply, err := s.call(ctx, NameTone, prompt, "You are a brand auditor", 0)
	if err != nil {
		return Result[model.BrandReport]{}, err
	}

	var r toneReply
	if err := jsonx.Decode(reply, &r); err != nil {
		return degrade(s, NameTone, DefaultBrandReport(), err), nil
	}

	report := model.BrandReport{Breakdown: map[string]int{}, Issues: []string{}}
	switch {
	case r.OverallScore != nil:
		report.OverallScore = clampScore(float64(*r.OverallScore))
	case r.ToneMatchScore != nil:
		report.OverallScore = clampScore(float64(*r.ToneMatchScore))
	default:
		return degrade(s, NameTone, DefaultBrandReport(), fmt.Errorf("no score in model response")), nil
	}
	for k, v := range r.Breakdown {
		report.Breakdown[k] = clampScore(float64(v))
	}
	for _, issue := range r.Issues {
		if issue = strings.TrimSpace(issue); issue != "" {
			report.Issues = append(report.Issues, issue)
		}
	}
	if a := strings.TrimSpace(r.Analysis); a != "" && len(report.Issues) == 0 {
		report.Issues = append(report.Issues, a)
	}

	s.succeed(NameTone)
	return ok(report), nil
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

// Rewrite 按评分问题重写文章，模型返回空内容时保留原文
func (s *Stages) Rewrite(ctx context.Context, article string, issues []string, voice string, brief model.ResearchBrief) (Result[string], error) {
	prompt := fmt.Sprintf(`You are a SENIOR BRAND EDITOR.

Brand Voice Guidelines:
%s

Research Direction:
%s

Improve the article based on these insights:
%s

Rewrite rules:
- Improve tone, clarity, flow
- Informational only (NO sales)
- SEO keywords naturally
- Preserve markdown formatting

Article:
%s

Return ONLY rewritten markdown.`, voice, toJSON(brief), toJSON(issues), article)

	return s.revise(ctx, NameRewrite, prompt, article)
}

// Refine 按用户建议修改文章
func (s *Stages) Refine(ctx context.Context, article, suggestion, voice string) (Result[string], error) {
	prompt := fmt.Sprintf(`You are a SENIOR BRAND EDITOR.

Brand Voice Guidelines:
%s

User Feedback:
%s

Article:
%s

Rewrite the article considering the user's feedback while maintaining brand voice.
Return ONLY rewritten markdown.`, voice, suggestion, article)

	return s.revise(ctx, NameRefine, prompt, article)
}

func (s *Stages) revise(ctx context.Context, name, prompt, original string) (Result[string], error) {
	reply, err := s.call(ctx, name, prompt, "You are a brand editor", 0.4)
	if err != nil {
		return Result[string]{}, err
	}
	revised := stripFence(reply)
	if revised == "" {
		return degrade(s, name, original, fmt.Errorf("empty revision")), nil
	}
	s.succeed(name)
	return ok(revised), nil
}
