package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"CredentialDesk/pkg/apperr"
)

// EmailChannel 通过 Resend 发送邮件
type EmailChannel struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// NewEmailChannel 创建邮件渠道
func NewEmailChannel(baseURL, apiKey, from string, timeout time.Duration) *EmailChannel {
	return &EmailChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send 发送一封通知邮件，返回服务商的邮件 ID
func (c *EmailChannel) Send(ctx context.Context, payload Payload) (string, error) {
	if c.apiKey == "" {
		return "", apperr.ExternalService("send email", fmt.Errorf("Resend API key 未配置"))
	}

	req := resendRequest{
		From:    c.from,
		To:      []string{payload.Recipient.Email},
		Subject: payload.Title,
		HTML:    renderEmail(payload),
		Text:    payload.Body,
	}
	var resp resendResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/emails", c.apiKey, req, &resp); err != nil {
		return "", apperr.ExternalService("send email", err)
	}
	return resp.ID, nil
}

func renderEmail(payload Payload) string {
	var b strings.Builder
	greeting := "Hello"
	if payload.Recipient.Name != "" {
		greeting = "Hello " + html.EscapeString(payload.Recipient.Name)
	}
	fmt.Fprintf(&b, "<p>%s,</p>", greeting)
	fmt.Fprintf(&b, "<p>%s (%s) sent a new message:</p>",
		html.EscapeString(payload.Metadata.SenderName), html.EscapeString(payload.Metadata.SenderRole))
	fmt.Fprintf(&b, "<blockquote>%s</blockquote>", html.EscapeString(payload.Metadata.MessagePreview))
	return b.String()
}
