package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.LLMCall("ok")
	m.LLMRetry()
	m.StageOutcome("brief", "degraded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`llm_calls_total{result="ok"} 1`,
		`llm_retries_total 1`,
		`stage_outcomes_total{outcome="degraded",stage="brief"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.LLMCall("error")
	m.LLMRetry()
	m.StageOutcome("angles", "ok")
}
