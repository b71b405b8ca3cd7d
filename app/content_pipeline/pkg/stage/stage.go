// Package stage 实现流水线中所有依赖 LLM 的单步处理。
//
// 每个阶段按固定模板拼装提示词，调用连接器，再用 jsonx 从回复中恢复结构化数据。
// 连接器错误直接返回；回复无法解析时降级为默认结果并记录告警，不中断流程。
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/llm"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/metrics"
)

// 各阶段名称，用于日志与指标
const (
	NameTopic   = "topic"
	NameSerp    = "serp"
	NameAngles  = "angles"
	NameBrief   = "brief"
	NameOutline = "outline"
	NameWrite   = "write"
	NameTone    = "tone"
	NameRewrite = "rewrite"
	NameRefine  = "refine"
)

// 输入截断长度（字符）
const (
	topicDocLimit  = 3000
	serpDataLimit  = 6000
	toneArticleCap = 3500
)

// Stages 阶段函数集合
type Stages struct {
	caller  llm.Caller
	metrics *metrics.Metrics
}

// New 创建阶段函数集合，m 可为 nil
func New(caller llm.Caller, m *metrics.Metrics) *Stages {
	return &Stages{caller: caller, metrics: m}
}

// call 调用模型，连接器错误带上阶段名返回
func (s *Stages) call(ctx context.Context, name, prompt, role string, temperature float32) (string, error) {
	text, err := s.caller.Call(ctx, prompt, role, temperature)
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", name, err)
	}
	return text, nil
}

func (s *Stages) succeed(name string) {
	s.metrics.StageOutcome(name, string(OK))
}

// degrade 记录降级并返回默认结果
func degrade[T any](s *Stages, name string, fallback T, cause error) Result[T] {
	logger.Log.WithFields(logrus.Fields{"stage": name}).Warnf("模型输出无法解析，使用默认结果: %v", cause)
	s.metrics.StageOutcome(name, string(Degraded))
	return Result[T]{Value: fallback, Outcome: Degraded, Cause: cause}
}

// truncate 按字符截断
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// stripFence 去掉整体包裹的 ``` / ```markdown 围栏
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	lines := strings.Split(t, "\n")
	if len(lines) < 2 {
		return t
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if last != "```" {
		return t
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// flexNumber 兼容 JSON 数字与数字字符串
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexNumber(v)
	return nil
}
