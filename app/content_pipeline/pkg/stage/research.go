package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/jsonx"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

// DefaultTopicInsight 主题提取失败时的默认值
func DefaultTopicInsight() model.TopicInsight {
	return model.TopicInsight{
		CoreTopic:      "Unknown topic",
		TargetAudience: "General audience",
		SearchIntent:   "informational",
	}
}

// DefaultSerpAnalysis SERP 分析失败时的默认值
func DefaultSerpAnalysis() model.SerpAnalysis {
	return model.SerpAnalysis{
		SerpType:             "unknown",
		SerpFeatures:         []string{},
		TopDomains:           []string{},
		CompetitorStrengths:  []string{},
		CompetitorWeaknesses: []string{},
		KeywordDifficulty:    "medium",
		RankingProbability:   "moderate",
	}
}

// DefaultAngle 第 i 个（从 1 开始）默认角度
func DefaultAngle(topic string, i int) string {
	return fmt.Sprintf("%s: perspective %d", topic, i)
}

// DefaultBrief 简报生成失败时按主题与角度构造的默认简报
func DefaultBrief(rc model.ResearchContext, angle string) model.ResearchBrief {
	audience := rc.TargetAudience
	if audience == "" {
		audience = "general readers"
	}
	return model.ResearchBrief{
		PrimaryKeyword:    strings.ToLower(rc.Topic),
		SecondaryKeywords: []string{},
		QuestionKeywords:  []string{},
		ContentAngle:      angle,
		RecommendedStructure: []string{
			"Introduction",
			"Why " + rc.Topic + " matters",
			"Practical tips",
			"Common questions",
			"Conclusion",
		},
		RecommendedWordCount: model.DefaultWordCount,
		RankingFeasibility:   "moderate",
		WritingInstructions:  fmt.Sprintf("Write an informational article about %q for %s.", angle, audience),
	}
}

// ExtractTopic 从文档文本中提取主题、受众与搜索意图
func (s *Stages) ExtractTopic(ctx context.Context, text string) (Result[model.TopicInsight], error) {
	prompt := fmt.Sprintf(`Analyze the document below and extract:
1. Core topic
2. Target audience
3. Search intent (informational/commercial/transactional)

Return ONLY JSON:
{
  "core_topic": "",
  "target_audience": "",
  "search_intent": ""
}

Document:
%s`, truncate(text, topicDocLimit))

	reply, err := s.call(ctx, NameTopic, prompt, "Topic analysis agent. JSON only.", 0.2)
	if err != nil {
		return Result[model.TopicInsight]{}, err
	}

	var insight model.TopicInsight
	if err := jsonx.Decode(reply, &insight); err != nil {
		return degrade(s, NameTopic, DefaultTopicInsight(), err), nil
	}
	if strings.TrimSpace(insight.CoreTopic) == "" {
		return degrade(s, NameTopic, DefaultTopicInsight(), fmt.Errorf("core_topic is empty")), nil
	}
	s.succeed(NameTopic)
	return ok(insight), nil
}

// AnalyzeSerp 分析原始 SERP 数据
func (s *Stages) AnalyzeSerp(ctx context.Context, serpData []byte) (Result[model.SerpAnalysis], error) {
	prompt := fmt.Sprintf(`Analyze the Google SERP data and return insights.

Return ONLY JSON:
{
  "serp_type": "",
  "serp_features": [],
  "top_domains": [],
  "competitor_strengths": [],
  "competitor_weaknesses": [],
  "keyword_difficulty": "",
  "ranking_probability": ""
}

SERP DATA:
%s`, truncate(string(serpData), serpDataLimit))

	reply, err := s.call(ctx, NameSerp, prompt, "SEO SERP research agent. JSON only.", 0.3)
	if err != nil {
		return Result[model.SerpAnalysis]{}, err
	}

	analysis := DefaultSerpAnalysis()
	if err := jsonx.Decode(reply, &analysis); err != nil {
		return degrade(s, NameSerp, DefaultSerpAnalysis(), err), nil
	}
	s.succeed(NameSerp)
	return ok(analysis), nil
}

// GenerateAngles 生成恰好 n 个不重复的博客角度
// 模型多给的截断，少给的用默认角度补齐。
func (s *Stages) GenerateAngles(ctx context.Context, rc model.ResearchContext, n int) (Result[[]string], error) {
	prompt := fmt.Sprintf(`Generate %d DISTINCT blog angles.

Return ONLY JSON:
{ "angles": [] }

Context:
%s`, n, toJSON(rc))

	reply, err := s.call(ctx, NameAngles, prompt, "Content ideation agent. JSON only.", 0.6)
	if err != nil {
		return Result[[]string]{}, err
	}

	var payload struct {
		Angles []json.RawMessage `json:"angles"`
	}
	if err := jsonx.Decode(reply, &payload); err != nil {
		return degrade(s, NameAngles, padAngles(nil, rc.Topic, n), err), nil
	}

	angles := parseAngles(payload.Angles)
	if len(angles) < n {
		cause := fmt.Errorf("model returned %d of %d angles", len(angles), n)
		return degrade(s, NameAngles, padAngles(angles, rc.Topic, n), cause), nil
	}
	s.succeed(NameAngles)
	return ok(angles[:n]), nil
}

// parseAngles 角度可能是字符串，也可能是带 title/angle 字段的对象，只丢弃空角度
func parseAngles(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var angle string
		if err := json.Unmarshal(r, &angle); err != nil {
			var obj struct {
				Title string `json:"title"`
				Angle string `json:"angle"`
			}
			if err := json.Unmarshal(r, &obj); err != nil {
				continue
			}
			angle = obj.Title
			if angle == "" {
				angle = obj.Angle
			}
		}
		angle = strings.TrimSpace(angle)
		if angle == "" {
			continue
		}
		out = append(out, angle)
	}
	return out
}

func padAngles(angles []string, topic string, n int) []string {
	out := make([]string, 0, n)
	out = append(out, angles...)
	for i := len(out) + 1; len(out) < n; i++ {
		out = append(out, DefaultAngle(topic, i))
	}
	return out[:n]
}

// briefPayload 简报的输出结构，模型多给的字段会被丢弃
type briefPayload struct {
	PrimaryKeyword       string          `json:"primary_keyword"`
	SecondaryKeywords    []string        `json:"secondary_keywords"`
	QuestionKeywords     []string        `json:"question_keywords"`
	ContentAngle         string          `json:"content_angle"`
	RecommendedStructure []string        `json:"recommended_structure"`
	RecommendedWordCount model.WordCount `json:"recommended_word_count"`
	RankingFeasibility   string          `json:"ranking_feasibility"`
	WritingInstructions  string          `json:"writing_instructions"`
}

// GenerateBrief 为单个角度生成研究简报
// 返回的简报不含 blog_number / blog_angle，由调用方标注。
func (s *Stages) GenerateBrief(ctx context.Context, rc model.ResearchContext, serp model.SerpAnalysis, angle string) (Result[model.ResearchBrief], error) {
	prompt := fmt.Sprintf(`Generate SERP Research Brief.

STRICT RULES:
- Return ONLY valid JSON
- Do NOT add markdown
- Do NOT add extra fields
- Match the output schema EXACTLY

Return ONLY JSON:
{
  "primary_keyword": "",
  "secondary_keywords": [],
  "question_keywords": [],
  "content_angle": "",
  "recommended_structure": [],
  "recommended_word_count": "",
  "ranking_feasibility": "",
  "writing_instructions": ""
}

Context:
%s

SERP:
%s

Angle:
%s`, toJSON(rc), toJSON(serp), angle)

	reply, err := s.call(ctx, NameBrief, prompt, "Content strategy agent. JSON only.", 0.2)
	if err != nil {
		return Result[model.ResearchBrief]{}, err
	}

	var p briefPayload
	if err := jsonx.Decode(reply, &p); err != nil {
		return degrade(s, NameBrief, DefaultBrief(rc, angle), err), nil
	}
	if strings.TrimSpace(p.PrimaryKeyword) == "" {
		return degrade(s, NameBrief, DefaultBrief(rc, angle), fmt.Errorf("primary_keyword is empty")), nil
	}

	brief := model.ResearchBrief{
		PrimaryKeyword:       p.PrimaryKeyword,
		SecondaryKeywords:    nonNil(p.SecondaryKeywords),
		QuestionKeywords:     nonNil(p.QuestionKeywords),
		ContentAngle:         p.ContentAngle,
		RecommendedStructure: nonNil(p.RecommendedStructure),
		RecommendedWordCount: model.WordCount(p.RecommendedWordCount.OrDefault()),
		RankingFeasibility:   p.RankingFeasibility,
		WritingInstructions:  p.WritingInstructions,
	}
	s.succeed(NameBrief)
	return ok(brief), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
