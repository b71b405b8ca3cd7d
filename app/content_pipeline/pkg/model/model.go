package model

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ResearchContext 单次请求的研究上下文，构造后不再修改
type ResearchContext struct {
	Topic          string `json:"topic"`
	TargetAudience string `json:"target_audience"`
	ContentGoal    string `json:"content_goal"`
	Brand          string `json:"brand"`
	Region         string `json:"region"`
	SearchIntent   string `json:"search_intent,omitempty"`
}

// TopicInsight 从上传文档中提取的主题信息
type TopicInsight struct {
	CoreTopic      string `json:"core_topic"`
	TargetAudience string `json:"target_audience"`
	SearchIntent   string `json:"search_intent"`
}

// SerpAnalysis 搜索结果页竞争分析
type SerpAnalysis struct {
	SerpType             string   `json:"serp_type"`
	SerpFeatures         []string `json:"serp_features"`
	TopDomains           []string `json:"top_domains"`
	CompetitorStrengths  []string `json:"competitor_strengths"`
	CompetitorWeaknesses []string `json:"competitor_weaknesses"`
	KeywordDifficulty    string   `json:"keyword_difficulty"`
	RankingProbability   string   `json:"ranking_probability"`
}

// DefaultWordCount 未给出建议字数时的默认值
const DefaultWordCount = 1500

// ResearchBrief 单个博客角度的 SEO 研究简报
type ResearchBrief struct {
	BlogNumber           int       `json:"blog_number"`
	BlogAngle            string    `json:"blog_angle"`
	Topic                string    `json:"topic,omitempty"`
	PrimaryKeyword       string    `json:"primary_keyword"`
	SecondaryKeywords    []string  `json:"secondary_keywords"`
	QuestionKeywords     []string  `json:"question_keywords"`
	ContentAngle         string    `json:"content_angle"`
	RecommendedStructure []string  `json:"recommended_structure"`
	RecommendedWordCount WordCount `json:"recommended_word_count"`
	RankingFeasibility   string    `json:"ranking_feasibility"`
	WritingInstructions  string    `json:"writing_instructions"`
}

// WordCount 建议字数，兼容 JSON 数字与 "1200-1500" 形式的字符串
type WordCount int

var firstNumber = regexp.MustCompile(`\d+`)

// UnmarshalJSON 实现 json.Unmarshaler
func (w *WordCount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*w = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.ReplaceAll(str, ",", "")
	}
	m := firstNumber.FindString(s)
	if m == "" {
		*w = 0
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return err
	}
	*w = WordCount(n)
	return nil
}

// OrDefault 返回字数，0 时回退到 DefaultWordCount
func (w WordCount) OrDefault() int {
	if w <= 0 {
		return DefaultWordCount
	}
	return int(w)
}

// ContentSummary 写作阶段可选的补充上下文 (summary.json)
type ContentSummary struct {
	TopicOverride string   `json:"topic_override"`
	Context       string   `json:"context"`
	KeyPoints     []string `json:"key_points"`
	Tone          string   `json:"tone"`
}

// BrandReport 品牌调性评估结果，每次评估独立产生
type BrandReport struct {
	OverallScore int            `json:"overall_score"`
	Breakdown    map[string]int `json:"breakdown"`
	Issues       []string       `json:"issues"`
}

// Accepted 分数是否达到阈值
func (r BrandReport) Accepted(threshold int) bool {
	return r.OverallScore >= threshold
}

// ArticleFile 输出目录中的一篇文章
type ArticleFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}
