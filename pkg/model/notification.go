// pkg/model/notification.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationChannel 通知渠道
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// NotificationStatus 通知状态, pending 只会迁移一次到 sent 或 failed
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationLog 通知记录
type NotificationLog struct {
	ID               string              `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID        string              `gorm:"type:uuid;not null;index" json:"message_id"`
	UserID           string              `gorm:"type:uuid;not null;index" json:"user_id"`
	NotificationType NotificationChannel `gorm:"type:varchar(20);not null" json:"notification_type"`
	Status           NotificationStatus  `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Metadata         datatypes.JSONMap   `json:"metadata"` // 收件人邮箱/姓名快照
	// 分发器认领时间，非空即不再投递
	AttemptedAt      *time.Time          `gorm:"index" json:"attempted_at"`
	// 补发任务入队时间，每条只补发一次
	SweptAt          *time.Time          `json:"swept_at"`
	SentAt           *time.Time          `json:"sent_at"`
	ErrorMessage     string              `json:"error_message"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (n *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// MetadataString 读取元数据中的字符串字段
func (n *NotificationLog) MetadataString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	if v, ok := n.Metadata[key].(string); ok {
		return v
	}
	return ""
}
