package notify

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"CredentialDesk/pkg/apperr"
)

// 模板邮件类型
const (
	TemplateInvitation = "invitation"
	TemplateWelcome    = "welcome"
)

// TemplateEmail 模板邮件请求，Data 中的字段与 type/to/firstName 平铺发送
type TemplateEmail struct {
	Type      string
	To        string
	FirstName string
	Data      map[string]interface{}
}

var errMailerNotConfigured = errors.New("邮件函数地址未配置")

// TemplateMailer 调用邮件函数发送模板邮件
type TemplateMailer struct {
	url    string
	apiKey string
	client *http.Client
}

// NewTemplateMailer 创建模板邮件发送器
func NewTemplateMailer(url, apiKey string, timeout time.Duration) *TemplateMailer {
	return &TemplateMailer{url: url, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// Send 发送模板邮件
func (m *TemplateMailer) Send(ctx context.Context, email TemplateEmail) error {
	if strings.TrimSpace(email.Type) == "" {
		return apperr.Validation("send template email", "缺少邮件类型")
	}
	if _, err := mail.ParseAddress(email.To); err != nil {
		return apperr.Validation("send template email", "收件人邮箱格式不正确")
	}
	if m.url == "" {
		return apperr.ExternalService("send template email", errMailerNotConfigured)
	}

	body := make(map[string]interface{}, len(email.Data)+3)
	for k, v := range email.Data {
		body[k] = v
	}
	body["type"] = email.Type
	body["to"] = email.To
	body["firstName"] = email.FirstName

	if err := postJSON(ctx, m.client, m.url, m.apiKey, body, nil); err != nil {
		return apperr.ExternalService("send template email", err)
	}
	return nil
}

