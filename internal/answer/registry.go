// Package answer 提供AI玩家的答案生成服务
package answer

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/config"
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// Client 单个模型的答案生成客户端
type Client interface {
	Answer(ctx context.Context, question string, humanAnswers []string) (string, error)
}

// Registry 模型名到客户端的路由
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *zap.Logger
}

// NewRegistry 创建空的模型路由
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Register 注册模型
func (r *Registry) Register(model string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[model] = c
}

// HasModel 模型是否可用
func (r *Registry) HasModel(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[model]
	return ok
}

// Models 可用模型列表
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Generate 按模型生成答案
func (r *Registry) Generate(ctx context.Context, model, question string, humanAnswers []string) (string, error) {
	r.mu.RLock()
	c, ok := r.clients[model]
	r.mu.RUnlock()
	if !ok {
		return "", apperrors.New(apperrors.ErrUnknownModel, model)
	}

	answer, err := c.Answer(ctx, question, humanAnswers)
	if err != nil {
		r.logger.Warn("答案生成失败", zap.String("model", model), zap.Error(err))
		return "", err
	}
	return answer, nil
}

// NewFromConfig 按配置注册全部模型
func NewFromConfig(cfg config.AnswerConfig, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	httpClient := &http.Client{Timeout: cfg.OpenAI.HTTPTimeout}

	for _, m := range cfg.Models {
		var c Client
		switch m.Provider {
		case "mock":
			c = NewMockClient(m.Delay, m.Text)
		case "openai":
			c = NewOpenAIClient(OpenAIConfig{
				Model:        m.Name,
				BaseURL:      cfg.OpenAI.BaseURL,
				APIKey:       cfg.OpenAI.APIKey,
				Instructions: cfg.OpenAI.Instructions,
				HTTPClient:   httpClient,
			})
		default:
			return nil, apperrors.Newf(apperrors.ErrConfigValidate, "未知的provider: %s", m.Provider)
		}
		if cfg.Retries > 0 {
			c = WithRetry(c, cfg.Retries, cfg.RetryDelay)
		}
		r.Register(m.Name, c)
		r.logger.Info("注册答案模型", zap.String("model", m.Name), zap.String("provider", m.Provider))
	}
	return r, nil
}
