// Package realtime 消息表变更的实时推送
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"CredentialDesk/pkg/model"
)

// EventType 变更类型
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// TableMessages 订阅的表
const TableMessages = "messages"

// ChangeEvent 表变更事件
type ChangeEvent struct {
	Type      EventType      `json:"eventType"`
	Table     string         `json:"table"`
	New       *model.Message `json:"new,omitempty"`
	Old       *model.Message `json:"old,omitempty"`
	Timestamp time.Time      `json:"commit_timestamp"`
}

// NewMessageEvent 构造消息表变更事件
func NewMessageEvent(eventType EventType, newMsg, oldMsg *model.Message) ChangeEvent {
	return ChangeEvent{
		Type:      eventType,
		Table:     TableMessages,
		New:       newMsg,
		Old:       oldMsg,
		Timestamp: time.Now(),
	}
}

func (e ChangeEvent) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	err := json.Unmarshal(data, &e)
	return e, err
}

// Broker 变更事件的发布订阅
type Broker interface {
	Publish(ctx context.Context, event ChangeEvent) error
	// Subscribe 返回事件通道与取消函数；取消后通道关闭
	Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error)
}
