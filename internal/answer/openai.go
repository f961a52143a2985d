package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// DefaultInstructions 给模型的系统提示
const DefaultInstructions = "You are participating in a game where players answer questions and vote on who they think " +
	"the AI imposter is. You will be provided with the question, followed by the players' answers. " +
	"Answer the question by blending in with the other answers so you aren't found out as the imposter. " +
	"You are not allowed to copy other player's answers exactly, but you can draw inspiration from them. " +
	"Don't respond with anything other than your answer to the question."

// OpenAIConfig OpenAI Responses 接口配置
type OpenAIConfig struct {
	Model        string
	BaseURL      string // 默认 https://api.openai.com/v1
	APIKey       string
	Instructions string
	HTTPClient   *http.Client
}

// OpenAIClient 通过 Responses 接口生成答案
type OpenAIClient struct {
	cfg          OpenAIConfig
	responsesURL string
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
}

type responsesPayload struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		cfg.Instructions = DefaultInstructions
	}
	return &OpenAIClient{
		cfg:          cfg,
		responsesURL: strings.TrimRight(cfg.BaseURL, "/") + "/responses",
	}
}

// Prompt 组装用户输入
func Prompt(question string, humanAnswers []string) string {
	return fmt.Sprintf("Question: %s\nAnswers: %s", question, strings.Join(humanAnswers, "\n"))
}

// Answer 调用 Responses 接口
func (c *OpenAIClient) Answer(ctx context.Context, question string, humanAnswers []string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", apperrors.New(apperrors.ErrAnswerService, "未配置 OpenAI API key")
	}

	body, err := json.Marshal(responsesRequest{
		Model: c.cfg.Model,
		Input: []inputMessage{
			{Role: "system", Content: c.cfg.Instructions},
			{Role: "user", Content: Prompt(question, humanAnswers)},
		},
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrAnswerService, "序列化请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.responsesURL, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrAnswerService, "构建请求失败")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.Wrap(err, apperrors.ErrAnswerTimeout, c.cfg.Model)
		}
		return "", apperrors.Wrap(err, apperrors.ErrAnswerUpstream, "请求失败")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		code := apperrors.ErrAnswerService
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			code = apperrors.ErrAnswerUpstream
		}
		return "", apperrors.Newf(code, "status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload responsesPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrAnswerService, "解析响应失败")
	}

	text := strings.TrimSpace(payload.OutputText)
	if text == "" {
		for _, item := range payload.Output {
			for _, content := range item.Content {
				if t := strings.TrimSpace(content.Text); t != "" {
					text = t
					break
				}
			}
			if text != "" {
				break
			}
		}
	}
	if text == "" {
		return "", apperrors.New(apperrors.ErrAnswerEmpty, c.cfg.Model)
	}
	return text, nil
}
