package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cahierdetextes/backend/config"
	"k8s.io/klog/v2"
)

// ErrNotConfigured 未配置 API Key
var ErrNotConfigured = errors.New("llm api key not configured")

// Client LLM 客户端
type Client struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// NewClient 创建新的 LLM 客户端
func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:   cfg.LLM.APIURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// ChatJSON 要求模型以 JSON 对象回复，temperature 取低值以稳定结构
func (c *Client) ChatJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	klog.V(6).Infof("ChatJSON 请求: model=%s, prompt=%d bytes", c.Model, len(userPrompt))
	return c.complete(ctx, ChatRequest{
		Model: c.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:      c.MaxTokens,
		Temperature:    0.1,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
}

func (c *Client) complete(ctx context.Context, reqBody ChatRequest) (string, error) {
	if c.APIKey == "" {
		return "", ErrNotConfigured
	}
	resp, err := c.sendRequest(ctx, reqBody)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}
	klog.V(6).Infof("LLM 响应: tokens=%d, finish=%s", resp.Usage.TotalTokens, resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	url := c.BaseURL + "/chat/completions"
	klog.V(6).Infof("发送 LLM 请求: url=%s, model=%s", url, reqBody.Model)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API status %d", resp.StatusCode)
	}

	return &chatResp, nil
}
