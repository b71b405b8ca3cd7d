package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线指标，方法对 nil 接收者安全
type Metrics struct {
	registry      *prometheus.Registry
	llmCalls      *prometheus.CounterVec
	llmRetries    prometheus.Counter
	stageOutcomes *prometheus.CounterVec
}

// New 创建独立 Registry 的指标集合
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "LLM connector calls by final result.",
		}, []string{"result"}),
		llmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "LLM attempts that failed and were retried.",
		}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stage_outcomes_total",
			Help: "Stage function results by outcome.",
		}, []string{"stage", "outcome"}),
	}
	m.registry.MustRegister(m.llmCalls, m.llmRetries, m.stageOutcomes)
	return m
}

// LLMCall 记录一次连接器调用的最终结果 (ok / error)
func (m *Metrics) LLMCall(result string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(result).Inc()
}

// LLMRetry 记录一次重试
func (m *Metrics) LLMRetry() {
	if m == nil {
		return
	}
	m.llmRetries.Inc()
}

// StageOutcome 记录阶段函数结果
func (m *Metrics) StageOutcome(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
