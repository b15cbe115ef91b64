// Package notify 把消息通知分发到各个渠道
package notify

import (
	"context"

	"CredentialDesk/pkg/model"
)

const (
	CategoryDeveloperMessage = "developer_message"
	PriorityNormal           = "normal"

	// DefaultSenderName 发送者没有姓名时的展示名
	DefaultSenderName = "Development Team"
	previewLength     = 100
)

// Recipient 通知接收人，来自通知记录里的快照
type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// PayloadMetadata 通知的上下文信息
type PayloadMetadata struct {
	SenderName     string `json:"sender_name"`
	SenderRole     string `json:"sender_role"`
	MessagePreview string `json:"message_preview"`
	MessageID      string `json:"message_id"`
}

// Payload 发给投递引擎的标准化通知
type Payload struct {
	Category  string          `json:"category"`
	Priority  string          `json:"priority"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Recipient Recipient       `json:"recipient"`
	Metadata  PayloadMetadata `json:"metadata"`
}

// ChannelResult 单个渠道的投递结果
type ChannelResult struct {
	Channel model.NotificationChannel `json:"channel"`
	Success bool                      `json:"success"`
	Error   string                    `json:"error,omitempty"`
}

// EngineResult 投递引擎的返回
type EngineResult struct {
	Results []ChannelResult `json:"results"`
}

// AnySuccess 是否有渠道投递成功
func (r *EngineResult) AnySuccess() bool {
	if r == nil {
		return false
	}
	for _, res := range r.Results {
		if res.Success {
			return true
		}
	}
	return false
}

// Engine 多渠道投递引擎
type Engine interface {
	Send(ctx context.Context, payload Payload) (*EngineResult, error)
}

// buildPayload 根据消息与接收人构造通知
func buildPayload(msg *model.Message, recipient Recipient) Payload {
	senderName := msg.Sender.DisplayName()
	if senderName == "" {
		senderName = DefaultSenderName
	}

	return Payload{
		Category:  CategoryDeveloperMessage,
		Priority:  PriorityNormal,
		Title:     "New message from " + senderName,
		Body:      msg.Body,
		Recipient: recipient,
		Metadata: PayloadMetadata{
			SenderName:     senderName,
			SenderRole:     string(msg.SenderRole),
			MessagePreview: preview(msg.Body),
			MessageID:      msg.ID,
		},
	}
}

// preview 截取前 100 个字符，截断时追加省略号
func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "..."
}
