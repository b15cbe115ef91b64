// Package service 消息发送与分析查询的业务逻辑
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/datatypes"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/messaging"
	"CredentialDesk/pkg/metrics"
	"CredentialDesk/pkg/model"
	"CredentialDesk/pkg/realtime"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 50
)

// JobQueue 发送后的异步任务投递
type JobQueue interface {
	EnqueueNotification(ctx context.Context, messageID, source string) error
	PublishMessageCreated(ctx context.Context, event messaging.MessageCreatedEvent) error
}

// SendRequest 发送消息请求
type SendRequest struct {
	Body       string
	SenderID   string
	SenderRole model.Role
	ReplyTo    string // 被回复的消息 ID，可为空
}

// MessageService 消息存储与发送
type MessageService struct {
	db     *database.Postgres
	queue  JobQueue
	broker realtime.Broker
}

// NewMessageService 创建消息服务，queue 与 broker 可为 nil
func NewMessageService(db *database.Postgres, queue JobQueue, broker realtime.Broker) *MessageService {
	return &MessageService{db: db, queue: queue, broker: broker}
}

// SendMessage 保存消息并为接收方创建待发送的通知记录，之后投递通知任务。
// 投递失败只记录日志，不影响发送结果。
func (s *MessageService) SendMessage(ctx context.Context, req SendRequest) (*model.Message, error) {
	logger := logx.WithContext(ctx)

	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperr.Validation("send message", "消息内容不能为空")
	}
	if !req.SenderRole.Valid() {
		return nil, apperr.Validation("send message", "发送方角色必须是 admin 或 developer")
	}
	if req.SenderID == "" {
		return nil, apperr.Validation("send message", "缺少发送方")
	}

	msg := &model.Message{
		Body:          body,
		SenderID:      req.SenderID,
		SenderRole:    req.SenderRole,
		RecipientRole: req.SenderRole.Counterpart(),
		Status:        model.MessageStatusSent,
	}

	if req.ReplyTo != "" {
		parent, err := s.db.Message().GetByID(ctx, req.ReplyTo)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return nil, apperr.Validation("send message", "回复的消息不存在")
			}
			return nil, err
		}
		root := parent.RootID()
		parentID := parent.ID
		msg.ThreadID = &root
		msg.ReplyToID = &parentID
	}

	var logs []*model.NotificationLog
	err := s.db.Transaction(ctx, func(tx *database.Postgres) error {
		if err := tx.Message().Create(ctx, msg); err != nil {
			return err
		}
		recipients, err := tx.Profile().NotifiableByRole(ctx, msg.RecipientRole)
		if err != nil {
			return err
		}
		logs = buildNotificationLogs(msg.ID, recipients)
		return tx.NotificationLog().CreateBatch(ctx, logs)
	})
	if err != nil {
		return nil, fmt.Errorf("发送消息失败: %w", err)
	}

	metrics.MessagesSentTotal.WithLabelValues(string(msg.SenderRole)).Inc()
	logger.Infof("消息 %s 已保存, 发送方=%s, 待通知 %d 人", msg.ID, msg.SenderRole, len(logs))

	if stored, err := s.db.Message().GetByID(ctx, msg.ID); err == nil {
		msg = stored
	}

	s.handoff(ctx, msg)
	s.publish(ctx, realtime.NewMessageEvent(realtime.EventInsert, msg, nil))
	return msg, nil
}

// handoff 投递通知任务与新消息事件
func (s *MessageService) handoff(ctx context.Context, msg *model.Message) {
	if s.queue == nil {
		return
	}
	logger := logx.WithContext(ctx)

	if err := s.queue.EnqueueNotification(ctx, msg.ID, "send"); err != nil {
		metrics.JobsEnqueueFailures.Inc()
		logger.Errorf("消息 %s 通知任务入队失败: %v", msg.ID, err)
	}

	event := messaging.MessageCreatedEvent{
		MessageID:  msg.ID,
		Body:       msg.Body,
		SenderID:   msg.SenderID,
		SenderRole: string(msg.SenderRole),
		SenderName: msg.Sender.DisplayName(),
		CreatedAt:  msg.CreatedAt,
	}
	if err := s.queue.PublishMessageCreated(ctx, event); err != nil {
		logger.Errorf("消息 %s 事件发布失败: %v", msg.ID, err)
	}
}

func (s *MessageService) publish(ctx context.Context, event realtime.ChangeEvent) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, event); err != nil {
		logx.WithContext(ctx).Errorf("发布实时变更失败: %v", err)
	}
}

// buildNotificationLogs 为每个接收人生成一条待发送的邮件通知，邮箱为空也照常生成
func buildNotificationLogs(messageID string, recipients []*model.Profile) []*model.NotificationLog {
	logs := make([]*model.NotificationLog, 0, len(recipients))
	for _, p := range recipients {
		meta := datatypes.JSONMap{
			"name": p.DisplayName(),
		}
		if p.Email != "" {
			meta["email"] = p.Email
		}
		if p.Phone != "" {
			meta["phone"] = p.Phone
		}
		logs = append(logs, &model.NotificationLog{
			MessageID:        messageID,
			UserID:           p.ID,
			NotificationType: model.ChannelEmail,
			Status:           model.NotificationPending,
			Metadata:         meta,
		})
	}
	return logs
}

// ListMessages 返回最近的消息，最新的在前
func (s *MessageService) ListMessages(ctx context.Context, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.db.Message().List(ctx, limit)
}

// Get 按 ID 获取消息
func (s *MessageService) Get(ctx context.Context, messageID string) (*model.Message, error) {
	return s.db.Message().GetByID(ctx, messageID)
}

// Thread 返回一个会话的全部消息，按时间正序
func (s *MessageService) Thread(ctx context.Context, rootID string) ([]*model.Message, error) {
	msgs, err := s.db.Message().ListThread(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound("get thread", "会话不存在")
	}
	return msgs, nil
}

// MarkAsRead 接收方查看消息时置为已读。已读或查看者不是接收方时不做修改。
func (s *MessageService) MarkAsRead(ctx context.Context, messageID string, viewerRole model.Role) (*model.Message, error) {
	if !viewerRole.Valid() {
		return nil, apperr.Validation("mark as read", "查看者角色必须是 admin 或 developer")
	}

	msg, err := s.db.Message().GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Status == model.MessageStatusRead || msg.RecipientRole != viewerRole {
		return msg, nil
	}

	updated, err := s.db.Message().MarkRead(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return msg, nil
	}

	old := *msg
	msg.Status = model.MessageStatusRead
	s.publish(ctx, realtime.NewMessageEvent(realtime.EventUpdate, msg, &old))
	return msg, nil
}
