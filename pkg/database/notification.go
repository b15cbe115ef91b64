// pkg/database/notification.go
package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"CredentialDesk/pkg/model"
)

type NotificationLogDB struct {
	db *gorm.DB
}

func (p *Postgres) NotificationLog() *NotificationLogDB {
	return &NotificationLogDB{db: p.db}
}

func (n *NotificationLogDB) CreateBatch(ctx context.Context, logs []*model.NotificationLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := n.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("创建通知记录失败: %w", err)
	}
	return nil
}

// Pending 返回消息在指定渠道上待发送且未被认领的通知
func (n *NotificationLogDB) Pending(ctx context.Context, messageID string, channel model.NotificationChannel) ([]*model.NotificationLog, error) {
	var logs []*model.NotificationLog
	err := n.db.WithContext(ctx).
		Where("message_id = ? AND notification_type = ? AND status = ? AND attempted_at IS NULL",
			messageID, channel, model.NotificationPending).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("查询待发送通知失败: %w", err)
	}
	return logs, nil
}

func (n *NotificationLogDB) ListByMessage(ctx context.Context, messageID string) ([]*model.NotificationLog, error) {
	var logs []*model.NotificationLog
	err := n.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("查询通知记录失败: %w", err)
	}
	return logs, nil
}

// Claim 在投递前认领通知，返回 false 表示已被其他处理认领
func (n *NotificationLogDB) Claim(ctx context.Context, logID string, at time.Time) (bool, error) {
	res := n.db.WithContext(ctx).Model(&model.NotificationLog{}).
		Where("id = ? AND status = ? AND attempted_at IS NULL", logID, model.NotificationPending).
		Updates(map[string]interface{}{"attempted_at": at, "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("认领通知失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkSent pending -> sent
func (n *NotificationLogDB) MarkSent(ctx context.Context, logID string, sentAt time.Time) error {
	return n.finish(ctx, logID, map[string]interface{}{
		"status":  model.NotificationSent,
		"sent_at": sentAt,
	})
}

// MarkFailed pending -> failed
func (n *NotificationLogDB) MarkFailed(ctx context.Context, logID, reason string) error {
	return n.finish(ctx, logID, map[string]interface{}{
		"status":        model.NotificationFailed,
		"error_message": reason,
	})
}

func (n *NotificationLogDB) finish(ctx context.Context, logID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := n.db.WithContext(ctx).Model(&model.NotificationLog{}).
		Where("id = ? AND status = ?", logID, model.NotificationPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新通知状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("通知 %s 已不是待发送状态", logID)
	}
	return nil
}

// ClaimStale 返回从未被认领也未补发过的超时通知所属消息，并标记为已补发。
// 认领过的记录即使停留在 pending 也不会再被选中。
func (n *NotificationLogDB) ClaimStale(ctx context.Context, olderThan, at time.Time) ([]string, error) {
	var ids []string
	err := n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := func() *gorm.DB {
			return tx.Model(&model.NotificationLog{}).
				Where("status = ? AND attempted_at IS NULL AND swept_at IS NULL AND created_at < ?",
					model.NotificationPending, olderThan)
		}
		if err := stale().Distinct("message_id").Pluck("message_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return stale().Where("message_id IN ?", ids).
			Updates(map[string]interface{}{"swept_at": at, "updated_at": at}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("查询超时通知失败: %w", err)
	}
	return ids, nil
}

// ReleaseSwept 补发入队失败时撤销标记，下一轮可再次补发
func (n *NotificationLogDB) ReleaseSwept(ctx context.Context, messageID string) error {
	err := n.db.WithContext(ctx).Model(&model.NotificationLog{}).
		Where("message_id = ? AND status = ? AND attempted_at IS NULL", messageID, model.NotificationPending).
		Update("swept_at", nil).Error
	if err != nil {
		return fmt.Errorf("撤销补发标记失败: %w", err)
	}
	return nil
}
