package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 有界重试策略，所有上游调用共用
type Policy struct {
	MaxAttempts int           // 总尝试次数（含第一次）
	Delay       time.Duration // 两次尝试之间的等待
	Exponential bool          // 为 true 时等待时间按 2 倍递增，无抖动
	Retryable   func(error) bool
	Notify      func(attempt int, err error, wait time.Duration)
}

// ExhaustedError 重试次数耗尽
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Always 所有错误都重试（上下文取消除外）
func Always(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RateLimitOnly 只对限流类错误重试
func RateLimitOnly(err error) bool {
	return Always(err) && IsRateLimit(err)
}

// IsRateLimit 判断是否为限流错误
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}

// Do 按策略执行 op，直到成功、遇到不可重试错误或次数耗尽
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Always
	}

	attempts := 0
	permanent := false
	operation := func() error {
		attempts++
		err := op(ctx)
		if err != nil && !retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.Notify != nil {
		notify = func(err error, wait time.Duration) {
			p.Notify(attempts, err, wait)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(p), uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil || permanent {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}

func newBackOff(p Policy) backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Delay)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Delay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = p.Delay * 32
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}
