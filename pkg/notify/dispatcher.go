package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/metrics"
	"CredentialDesk/pkg/model"
)

const (
	ErrNoEmailAddress    = "No email address"
	ErrAllChannelsFailed = "All channels failed"
)

// RecipientResult 单个接收人的处理结果
type RecipientResult struct {
	LogID   string `json:"log_id"`
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	skipped bool
}

// Result 一次批量处理的汇总
type Result struct {
	Sent    int               `json:"sent"`
	Failed  int               `json:"failed"`
	Details []RecipientResult `json:"details"`
}

// Dispatcher 处理一条消息的全部待发送通知
type Dispatcher struct {
	db     *database.Postgres
	engine Engine
	now    func() time.Time
}

// NewDispatcher 创建分发器
func NewDispatcher(db *database.Postgres, engine Engine) *Dispatcher {
	return &Dispatcher{db: db, engine: engine, now: time.Now}
}

// ProcessMessageNotifications 并发处理消息的待发送邮件通知。
// 只有在逐个处理之前的错误才会返回 error，单个接收人的失败记录在结果里。
func (d *Dispatcher) ProcessMessageNotifications(ctx context.Context, messageID string) (*Result, error) {
	logger := logx.WithContext(ctx)

	msg, err := d.db.Message().GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("获取消息失败: %w", err)
	}
	logs, err := d.db.NotificationLog().Pending(ctx, messageID, model.ChannelEmail)
	if err != nil {
		return nil, fmt.Errorf("获取待发送通知失败: %w", err)
	}

	result := &Result{Details: make([]RecipientResult, 0, len(logs))}
	if len(logs) == 0 {
		logger.Infof("消息 %s 没有待发送的通知", messageID)
		return result, nil
	}

	details := make([]RecipientResult, len(logs))
	var g errgroup.Group
	for i, entry := range logs {
		i, entry := i, entry
		g.Go(func() error {
			details[i] = d.processOne(ctx, msg, entry)
			return nil
		})
	}
	_ = g.Wait()

	for _, detail := range details {
		switch {
		case detail.skipped:
			continue
		case detail.Success:
			result.Sent++
		default:
			result.Failed++
		}
		result.Details = append(result.Details, detail)
	}

	logger.Infof("消息 %s 通知处理完成: sent=%d failed=%d", messageID, result.Sent, result.Failed)
	return result, nil
}

// processOne 处理单个接收人，panic 与错误都记为失败。
// 投递前先认领记录，认领后无论状态能否写回都不会再次投递。
func (d *Dispatcher) processOne(ctx context.Context, msg *model.Message, entry *model.NotificationLog) (detail RecipientResult) {
	logger := logx.WithContext(ctx)
	claimed, err := d.db.NotificationLog().Claim(ctx, entry.ID, d.now())
	if err != nil || !claimed {
		if err != nil {
			logger.Errorf("认领通知 %s 失败: %v", entry.ID, err)
		}
		return RecipientResult{LogID: entry.ID, UserID: entry.UserID, skipped: true}
	}

	recipient := Recipient{
		UserID: entry.UserID,
		Email:  entry.MetadataString("email"),
		Name:   entry.MetadataString("name"),
		Phone:  entry.MetadataString("phone"),
	}
	detail = RecipientResult{LogID: entry.ID, UserID: entry.UserID, Email: recipient.Email}

	var once sync.Once
	fail := func(reason string) {
		once.Do(func() {
			detail.Success = false
			detail.Error = reason
			metrics.NotificationsTotal.WithLabelValues(string(model.NotificationFailed)).Inc()
			if err := d.db.NotificationLog().MarkFailed(ctx, entry.ID, reason); err != nil {
				logger.Errorf("更新通知记录 %s 失败: %v", entry.ID, err)
			}
		})
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("通知 %s 处理异常: %v", entry.ID, r)
			fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	if recipient.Email == "" {
		fail(ErrNoEmailAddress)
		return detail
	}

	res, err := d.engine.Send(ctx, buildPayload(msg, recipient))
	if err != nil {
		logger.Errorf("通知 %s 投递失败: %v", entry.ID, err)
		fail(err.Error())
		return detail
	}
	if !res.AnySuccess() {
		fail(ErrAllChannelsFailed)
		return detail
	}

	once.Do(func() {
		detail.Success = true
		metrics.NotificationsTotal.WithLabelValues(string(model.NotificationSent)).Inc()
		if err := d.db.NotificationLog().MarkSent(ctx, entry.ID, d.now()); err != nil {
			logger.Errorf("更新通知记录 %s 失败: %v", entry.ID, err)
		}
	})
	return detail
}
