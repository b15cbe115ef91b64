// pkg/model/message.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 消息双方角色
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// Valid 是否为合法角色
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDeveloper
}

// Counterpart 返回对方角色
func (r Role) Counterpart() Role {
	if r == RoleAdmin {
		return RoleDeveloper
	}
	return RoleAdmin
}

// MessageStatus 消息状态
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message 管理员与开发者之间的消息
type Message struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	Body          string        `gorm:"type:text;not null" json:"body"`
	SenderID      string        `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderRole    Role          `gorm:"type:varchar(20);not null" json:"sender_role"`
	RecipientRole Role          `gorm:"type:varchar(20);not null;index" json:"recipient_role"`
	Status        MessageStatus `gorm:"type:varchar(20);default:'sent';index" json:"status"`
	// 会话根消息与直接回复的消息
	ThreadID      *string       `gorm:"type:uuid;index" json:"thread_id"`
	ReplyToID     *string       `gorm:"type:uuid" json:"reply_to_id"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// 关联
	Sender *Profile `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// RootID 回复本消息时应使用的 thread_id
func (m *Message) RootID() string {
	if m.ThreadID != nil && *m.ThreadID != "" {
		return *m.ThreadID
	}
	return m.ID
}
