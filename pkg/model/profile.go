// pkg/model/profile.go
package model

import (
	"strings"
	"time"
)

// Profile 用户资料，表结构由外部维护
type Profile struct {
	ID                 string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email              string    `gorm:"index" json:"email"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Phone              string    `json:"phone"`
	Role               Role      `gorm:"type:varchar(20);index" json:"role"`
	EmailNotifications bool      `json:"email_notifications"`
	SMSNotifications   bool      `json:"sms_notifications"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DisplayName 展示名称，没有姓名时返回空串
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
