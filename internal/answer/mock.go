package answer

import (
	"context"
	"time"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// DefaultMockText 本地开发模型的固定回答
const DefaultMockText = "This is a mock response."

// MockClient 模拟延迟后返回固定答案，用于本地开发
type MockClient struct {
	Delay time.Duration
	Text  string
}

// NewMockClient 创建模拟客户端
func NewMockClient(delay time.Duration, text string) *MockClient {
	if text == "" {
		text = DefaultMockText
	}
	return &MockClient{Delay: delay, Text: text}
}

// Answer 等待 Delay 后返回 Text
func (m *MockClient) Answer(ctx context.Context, _ string, _ []string) (string, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", apperrors.Wrap(ctx.Err(), apperrors.ErrAnswerTimeout, "mock")
		}
	}
	return m.Text, nil
}
