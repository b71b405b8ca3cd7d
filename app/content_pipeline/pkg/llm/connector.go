package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/metrics"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/retry"
)

// Caller 阶段函数依赖的 LLM 调用接口
type Caller interface {
	// Call 以 role 作为系统提示调用模型，返回原始文本
	Call(ctx context.Context, prompt, role string, temperature float32) (string, error)
}

// ErrEmptyCompletion 模型返回空内容
var ErrEmptyCompletion = errors.New("empty completion")

// Connector 带限流与有界重试的 LLM 连接器
type Connector struct {
	chatModel model.BaseChatModel
	limiter   *rate.Limiter
	policy    retry.Policy
	metrics   *metrics.Metrics
}

var _ Caller = (*Connector)(nil)

// NewConnector 基于已有的 ChatModel 创建连接器，limiter 可为 nil
func NewConnector(cm model.BaseChatModel, limiter *rate.Limiter, policy retry.Policy, m *metrics.Metrics) *Connector {
	return &Connector{
		chatModel: cm,
		limiter:   limiter,
		policy:    policy,
		metrics:   m,
	}
}

// NewOpenAIConnector 按配置初始化 OpenAI 兼容模型与限流器
func NewOpenAIConnector(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Connector, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.Timeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	limit := rate.Limit(float64(cfg.Concurrency.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Concurrency.QPS)
	logger.Log.Infof("限流器已配置: Limit=%.2f req/s, Burst=%d", limit, cfg.Concurrency.QPS)

	return NewConnector(chatModel, limiter, PolicyFromConfig(cfg.Retry), m), nil
}

// PolicyFromConfig 由配置生成重试策略
func PolicyFromConfig(rc config.RetryConfig) retry.Policy {
	p := retry.Policy{
		MaxAttempts: rc.MaxAttempts,
		Delay:       rc.Wait(),
		Exponential: rc.Exponential,
		Retryable:   retry.Always,
	}
	if rc.RateLimitOnly {
		p.Retryable = func(err error) bool {
			return errors.Is(err, ErrEmptyCompletion) || retry.RateLimitOnly(err)
		}
	}
	return p
}

// Call 实现 Caller
func (c *Connector) Call(ctx context.Context, prompt, role string, temperature float32) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: role},
		{Role: schema.User, Content: prompt},
	}

	policy := c.policy
	policy.Notify = func(attempt int, err error, wait time.Duration) {
		c.metrics.LLMRetry()
		logger.Log.Warnf("LLM 调用失败 (第 %d 次): %v，%s 后重试", attempt, err, wait)
	}

	var content string
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := c.chatModel.Generate(ctx, messages, model.WithTemperature(temperature))
		if err != nil {
			return err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return ErrEmptyCompletion
		}
		content = resp.Content
		return nil
	})
	if err != nil {
		c.metrics.LLMCall("error")
		var ex *retry.ExhaustedError
		if errors.As(err, &ex) {
			return "", errcode.Exhausted(err, "LLM 调用在 %d 次尝试后失败", ex.Attempts)
		}
		return "", errcode.Upstream(err, "LLM 调用失败")
	}

	c.metrics.LLMCall("ok")
	return content, nil
}
