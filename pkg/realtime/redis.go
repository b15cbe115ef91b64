package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
)

// RedisBroker 基于 Redis Pub/Sub 的跨实例广播
type RedisBroker struct {
	cli     *redis.Client
	channel string
}

// NewRedisBroker 解析 URL 并创建客户端
func NewRedisBroker(url, channel string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("解析Redis地址失败: %w", err)
	}
	return &RedisBroker{cli: redis.NewClient(opt), channel: channel}, nil
}

// Publish 发布变更事件
func (b *RedisBroker) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := event.encode()
	if err != nil {
		return fmt.Errorf("序列化变更事件失败: %w", err)
	}
	if err := b.cli.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("发布变更事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅频道，把消息转换为变更事件
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	pubsub := b.cli.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("订阅Redis频道失败: %w", err)
	}

	out := make(chan ChangeEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				event, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					logx.Errorf("解析变更事件失败: %v", err)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Ping 健康检查
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.cli.Ping(ctx).Err()
}

// Close 关闭客户端
func (b *RedisBroker) Close() error {
	return b.cli.Close()
}
