package rate

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"gridnews/pkg/contract"
)

// RetryPolicy: 指数退避重试参数。MaxRetries=0 表示仅调用一次。
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxElapsed      time.Duration
	// Notify 在每次退避前回调（可为 nil），用于日志。
	Notify func(err error, wait time.Duration)
}

// Retryable 判定错误是否值得重试：限流、网络错误、上游 5xx/429。
// 取消、输入错误与协议类错误不重试。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return true
	}
	var uerr contract.UpstreamError
	if errors.As(err, &uerr) {
		s := uerr.UpstreamStatus()
		return s == 429 || s >= 500
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// Do 在 policy 下执行 op；不可重试的错误立即返回，原样保留错误链。
func Do[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	if p.MaxRetries <= 0 {
		return op(ctx)
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.MaxRetries + 1)),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	// 末次尝试的 Permanent 包装不会被 Retry 剥离
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}
