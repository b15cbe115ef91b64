package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"CredentialDesk/pkg/apperr"
)

// LLMClient 大模型客户端，兼容 chat-completions 接口
type LLMClient struct {
	apiURL    string
	apiKey    string
	modelName string
	client    *http.Client
}

// Message 表示对话中的一条消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 表示聊天请求
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse 表示聊天响应
type ChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewLLMClient 创建新的大模型客户端
func NewLLMClient(apiURL, apiKey, modelName string, timeout time.Duration) *LLMClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMClient{
		apiURL:    apiURL,
		apiKey:    apiKey,
		modelName: modelName,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Model 当前使用的模型名称
func (c *LLMClient) Model() string {
	return c.modelName
}

// Chat 发送聊天请求并获取响应
func (c *LLMClient) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	reqBody := ChatRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.ExternalService("llm chat", fmt.Errorf("发送请求失败: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.ExternalService("llm chat", fmt.Errorf("读取响应失败: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperr.ExternalService("llm chat", fmt.Errorf("API返回错误(%d): %s", resp.StatusCode, string(body)))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", apperr.ExternalService("llm chat", fmt.Errorf("解析响应失败: %w", err))
	}

	if len(chatResp.Choices) == 0 {
		return "", apperr.ExternalService("llm chat", fmt.Errorf("API返回空响应"))
	}

	return chatResp.Choices[0].Message.Content, nil
}
