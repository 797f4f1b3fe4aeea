package txn

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy 按错误种类集中控制重试，显式传入 Compiler / Submitter / Monitor
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration // 0 表示只受 MaxAttempts 与 ctx 约束
	Multiplier      float64
	MaxAttempts     uint64 // 包含首次调用，0 表示不限
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
		Multiplier:      2,
		MaxAttempts:     4,
	}
}

// NoRetry 只调用一次
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.MaxElapsedTime = p.MaxElapsedTime
	exp.Reset()

	var b backoff.BackOff = exp
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// ShouldRetry 默认重试判定：仅 Retryable 的瞬时错误
func ShouldRetry(err error) bool {
	e, ok := AsError(err)
	return ok && e.Category() == CategoryTransient && e.Retryable
}

// Do 执行 op，shouldRetry 返回 false 的错误立即返回。
// ctx 结束时返回最后一次 op 的错误，没有则返回 ctx.Err()。
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, shouldRetry func(error) bool, notify func(err error, wait time.Duration)) error {
	if shouldRetry == nil {
		shouldRetry = ShouldRetry
	}
	var lastErr error
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if lastErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return lastErr
	}
	return err
}
