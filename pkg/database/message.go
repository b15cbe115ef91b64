// pkg/database/message.go
package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/model"
)

type MessageDB struct {
	db *gorm.DB
}

func (p *Postgres) Message() *MessageDB {
	return &MessageDB{db: p.db}
}

func (m *MessageDB) Create(ctx context.Context, msg *model.Message) error {
	if err := m.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("保存消息失败: %w", err)
	}
	return nil
}

func (m *MessageDB) GetByID(ctx context.Context, messageID string) (*model.Message, error) {
	var msg model.Message
	err := m.db.WithContext(ctx).Preload("Sender").First(&msg, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("get message", "消息不存在")
		}
		return nil, fmt.Errorf("获取消息失败: %w", err)
	}
	return &msg, nil
}

// List 按创建时间倒序返回最近的消息
func (m *MessageDB) List(ctx context.Context, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	err := m.db.WithContext(ctx).
		Preload("Sender").
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("查询消息列表失败: %w", err)
	}
	return msgs, nil
}

// ListThread 返回根消息及其全部回复，按时间正序
func (m *MessageDB) ListThread(ctx context.Context, rootID string) ([]*model.Message, error) {
	var msgs []*model.Message
	err := m.db.WithContext(ctx).
		Preload("Sender").
		Where("id = ? OR thread_id = ?", rootID, rootID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话消息失败: %w", err)
	}
	return msgs, nil
}

// MarkRead 把未读消息置为已读，返回是否有行被更新
func (m *MessageDB) MarkRead(ctx context.Context, messageID string) (bool, error) {
	res := m.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND status <> ?", messageID, model.MessageStatusRead).
		Update("status", model.MessageStatusRead)
	if res.Error != nil {
		return false, fmt.Errorf("更新消息状态失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
