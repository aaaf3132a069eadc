package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy 步骤级重试策略
type RetryPolicy struct {
	Limit    int           // 总尝试次数（含首次）
	Delay    time.Duration // 首次重试间隔，之后指数增长
	MaxDelay time.Duration
}

type stepConfig struct {
	retry *RetryPolicy
}

type StepOption func(*stepConfig)

// WithRetry 为步骤附加重试策略
func WithRetry(p RetryPolicy) StepOption {
	return func(c *stepConfig) {
		c.retry = &p
	}
}

// Do 执行一个持久化步骤。已完成的步骤直接返回保存的输出，不再调用 fn。
func Do[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error), opts ...StepOption) (T, error) {
	var zero T

	if out, ok, err := replay[T](run, name); ok || err != nil {
		return out, err
	}

	result, err := invoke(ctx, run, name, fn, opts)
	if err != nil {
		return zero, fmt.Errorf("step %q: %w", name, err)
	}

	if err := run.record(name, result); err != nil {
		return zero, err
	}
	return result, nil
}

// DoOrElse 同 Do，但重试耗尽后用 fallback 的结果作为步骤输出并持久化。
// context 取消不会触发 fallback。
func DoOrElse[T any](
	ctx context.Context, run *Run, name string,
	fn func(ctx context.Context) (T, error), fallback func(err error) T, opts ...StepOption,
) (T, error) {
	var zero T

	if out, ok, err := replay[T](run, name); ok || err != nil {
		return out, err
	}

	result, err := invoke(ctx, run, name, fn, opts)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, fmt.Errorf("step %q: %w", name, err)
		}
		run.logger.Warn("Step exhausted, using fallback",
			zap.String("step", name),
			zap.Error(err))
		result = fallback(err)
	}

	if err := run.record(name, result); err != nil {
		return zero, err
	}
	return result, nil
}

func replay[T any](run *Run, name string) (T, bool, error) {
	var out T
	raw, ok := run.completed[name]
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, true, fmt.Errorf("failed to decode output of step %q: %w", name, err)
	}
	run.logger.Debug("Step replayed from checkpoint", zap.String("step", name))
	return out, true, nil
}

func invoke[T any](ctx context.Context, run *Run, name string, fn func(ctx context.Context) (T, error), opts []StepOption) (T, error) {
	cfg := stepConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.retry == nil || cfg.retry.Limit <= 1 {
		return fn(ctx)
	}

	b := backoff.WithMaxRetries(newBackOff(cfg.retry), uint64(cfg.retry.Limit-1))

	var result T
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		result, err = fn(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		run.logger.Warn("Step attempt failed, retrying",
			zap.String("step", name),
			zap.Int("attempt", attempt),
			zap.Duration("retryIn", next),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	return result, err
}

func newBackOff(p *RetryPolicy) *backoff.ExponentialBackOff {
	opts := []backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(p.Delay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, backoff.WithMaxInterval(p.MaxDelay))
	}
	return backoff.NewExponentialBackOff(opts...)
}
