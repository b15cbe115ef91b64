package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationJob 消息通知任务
type NotificationJob struct {
	MessageID  string    `json:"message_id"`
	Source     string    `json:"source"` // send / sweep
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MessageCreatedEvent 新消息事件，供分类服务消费
type MessageCreatedEvent struct {
	MessageID  string    `json:"message_id"`
	Body       string    `json:"body"`
	SenderID   string    `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	SenderName string    `json:"sender_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher 发布接口
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// JobQueue 在 NATS 之上的任务投递
type JobQueue struct {
	publisher Publisher
}

// NewJobQueue 创建任务队列
func NewJobQueue(publisher Publisher) *JobQueue {
	return &JobQueue{publisher: publisher}
}

// EnqueueNotification 投递通知任务
func (q *JobQueue) EnqueueNotification(ctx context.Context, messageID, source string) error {
	job := NotificationJob{
		MessageID:  messageID,
		Source:     source,
		EnqueuedAt: time.Now(),
	}
	return q.publisher.Publish(ctx, SubjectNotificationDispatch, job)
}

// PublishMessageCreated 发布新消息事件
func (q *JobQueue) PublishMessageCreated(ctx context.Context, event MessageCreatedEvent) error {
	return q.publisher.Publish(ctx, SubjectMessageCreated, event)
}

// DecodeNotificationJob 解析通知任务
func DecodeNotificationJob(data []byte) (NotificationJob, error) {
	var job NotificationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("解析通知任务失败: %w", err)
	}
	if job.MessageID == "" {
		return job, fmt.Errorf("通知任务缺少 message_id")
	}
	return job, nil
}

// DecodeMessageCreated 解析新消息事件
func DecodeMessageCreated(data []byte) (MessageCreatedEvent, error) {
	var event MessageCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("解析消息事件失败: %w", err)
	}
	if event.MessageID == "" {
		return event, fmt.Errorf("消息事件缺少 message_id")
	}
	return event, nil
}
