package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/metrics"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/retry"
)

// mockChatModel 按顺序返回预设结果
type mockChatModel struct {
	replies  []string
	errs     []error
	calls    int
	messages []*schema.Message
	temp     *float32
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	m.messages = input
	m.temp = model.GetCommonOptions(nil, opts...).Temperature
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.replies) {
		return schema.AssistantMessage(m.replies[i], nil), nil
	}
	return schema.AssistantMessage("", nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Delay: time.Millisecond, Retryable: retry.Always}
}

func TestConnector_Call(t *testing.T) {
	cm := &mockChatModel{replies: []string{`{"angles": []}`}}
	c := NewConnector(cm, nil, fastPolicy(5), nil)

	got, err := c.Call(context.Background(), "Generate angles", "Content ideation agent. JSON only.", 0.4)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != `{"angles": []}` {
		t.Errorf("Call() = %q", got)
	}
	if len(cm.messages) != 2 || cm.messages[0].Role != schema.System || cm.messages[1].Content != "Generate angles" {
		t.Errorf("messages = %+v", cm.messages)
	}
	if cm.temp == nil || *cm.temp != 0.4 {
		t.Errorf("temperature option not passed: %v", cm.temp)
	}
}

func TestConnector_RetriesThenSucceeds(t *testing.T) {
	cm := &mockChatModel{
		errs:    []error{errors.New("429 too many requests"), nil, nil},
		replies: []string{"", "", "ok"},
	}
	m := metrics.New()
	c := NewConnector(cm, nil, fastPolicy(5), m)

	got, err := c.Call(context.Background(), "p", "r", 0)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	// 第二次返回空内容，同样计为一次失败
	if got != "ok" || cm.calls != 3 {
		t.Errorf("Call() = %q after %d calls, want ok after 3", got, cm.calls)
	}
}

func TestConnector_FailsAfterFiveAttempts(t *testing.T) {
	boom := errors.New("upstream down")
	cm := &mockChatModel{errs: []error{boom, boom, boom, boom, boom, boom}}
	c := NewConnector(cm, nil, fastPolicy(5), nil)

	got, err := c.Call(context.Background(), "p", "r", 0)
	if err == nil {
		t.Fatal("Call() should fail")
	}
	if got != "" {
		t.Errorf("Call() returned partial output %q", got)
	}
	if cm.calls != 5 {
		t.Errorf("calls = %d, want 5", cm.calls)
	}
	if !errcode.IsUpstream(err) {
		t.Errorf("error kind lost: %v", err)
	}
}

func TestConnector_RateLimitOnlyDoesNotRetryAuth(t *testing.T) {
	cm := &mockChatModel{errs: []error{errors.New("401 invalid api key")}}
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 5, RateLimitOnly: true})
	p.Delay = time.Millisecond
	c := NewConnector(cm, nil, p, nil)

	if _, err := c.Call(context.Background(), "p", "r", 0); err == nil {
		t.Fatal("Call() should fail")
	}
	if cm.calls != 1 {
		t.Errorf("calls = %d, want 1", cm.calls)
	}
}
