package notify

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

// HTTPEngine 调用远端的多渠道通知函数
type HTTPEngine struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPEngine 创建远端投递引擎
func NewHTTPEngine(url, apiKey string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Send 以 Bearer 认证 POST 通知内容
func (e *HTTPEngine) Send(ctx context.Context, payload Payload) (*EngineResult, error) {
	var result EngineResult
	if err := postJSON(ctx, e.client, e.url, e.apiKey, payload, &result); err != nil {
		return nil, apperr.ExternalService("notification engine", err)
	}
	return &result, nil
}

// postJSON 发送 JSON 请求，out 不为 nil 时解析响应
func postJSON(ctx context.Context, client *http.Client, url, bearer string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("请求返回错误状态 %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
