package retry

import (
	"context"
	"time"
)

// Policy 幂等网络调用的重试策略：最多 MaxAttempts 次，指数退避
// (BaseDelay * 2^attempt)。Sleep 可注入，便于测试使用假时钟。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// New 创建重试策略
func New(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
	}
}

// Do 执行 fn，失败则按退避策略重试
// retryable 返回 false 的错误立即放弃（如参数错误）
func (p Policy) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}

		delay := p.BaseDelay << uint(attempt)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
