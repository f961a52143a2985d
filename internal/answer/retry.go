package answer

import (
	"context"
	"time"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// RetryClient 对可重试错误重试
type RetryClient struct {
	next    Client
	retries int
	delay   time.Duration
}

// WithRetry 包装客户端，最多额外重试 retries 次
func WithRetry(next Client, retries int, delay time.Duration) *RetryClient {
	return &RetryClient{next: next, retries: retries, delay: delay}
}

// Answer 调用下层客户端，遇到可重试错误且上下文未结束时重试
func (r *RetryClient) Answer(ctx context.Context, question string, humanAnswers []string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 && r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return "", lastErr
			}
		}
		answer, err := r.next.Answer(ctx, question, humanAnswers)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}
