// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	NotificationsStream = "NOTIFICATIONS_STREAM"
	MessagesStream      = "MESSAGES_STREAM"

	SubjectNotificationDispatch = "notifications.dispatch"
	SubjectMessageCreated       = "messages.created"
)

// NATSClient NATS JetStream客户端 - 纯基础能力封装
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.ConsumeContext // 消费者管理
	mu        sync.Mutex                          // 保护consumers
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(ctx context.Context, data []byte) error

// NewNATSClient 创建新的NATS客户端
func NewNATSClient(natsURL, clientName string) (*NATSClient, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(clientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logx.Errorf("NATS连接断开: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logx.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.ConsumeContext),
	}

	if err := client.setupStreams(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// setupStreams 设置基础的Streams
func (c *NATSClient) setupStreams() error {
	streams := []jetstream.StreamConfig{
		{
			Name:        NotificationsStream,
			Subjects:    []string{"notifications.*"},
			Description: "消息通知任务",
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
		},
		{
			Name:        MessagesStream,
			Subjects:    []string{"messages.*"},
			Description: "消息事件流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100000,
			MaxBytes:    100 * 1024 * 1024, // 100MB
			MaxAge:      7 * 24 * time.Hour,
		},
	}

	for _, streamConfig := range streams {
		if _, err := c.jetStream.CreateOrUpdateStream(c.ctx, streamConfig); err != nil {
			return fmt.Errorf("创建/更新Stream %s 失败: %w", streamConfig.Name, err)
		}
		logx.Infof("Stream %s 设置成功", streamConfig.Name)
	}

	return nil
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data interface{}) error {
	var payload []byte
	var err error

	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
	}

	if _, err = c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	logx.WithContext(ctx).Infof("发布消息到主题: %s, 数据大小: %d bytes", subject, len(payload))
	return nil
}

// Subscribe 以持久消费者订阅指定主题。
// 处理失败的消息直接终止投递，不会重试。
func (c *NATSClient) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxDeliver:    1,
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handleMessage(consumerName, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = cc
	c.mu.Unlock()

	logx.Infof("已订阅 %s (Stream: %s, Consumer: %s)", filterSubject, streamName, consumerName)
	return nil
}

// handleMessage 处理单条消息，panic 与错误都按终态处理
func (c *NATSClient) handleMessage(consumerName string, msg jetstream.Msg, handler MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("消费者 %s 处理消息异常: %v", consumerName, r)
			_ = msg.Term()
		}
	}()

	if err := handler(c.ctx, msg.Data()); err != nil {
		logx.Errorf("消费者 %s 处理消息失败: %v", consumerName, err)
		_ = msg.Term()
		return
	}
	_ = msg.Ack()
}

// GetStreamInfo 获取Stream信息
func (c *NATSClient) GetStreamInfo(ctx context.Context, streamName string) (*jetstream.StreamInfo, error) {
	stream, err := c.jetStream.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}
	return stream.Info(ctx)
}

// Close 关闭连接
func (c *NATSClient) Close() error {
	logx.Info("正在关闭NATS连接...")

	c.cancel()

	c.mu.Lock()
	for name, cc := range c.consumers {
		cc.Stop()
		logx.Infof("停止消费者: %s", name)
	}
	c.consumers = make(map[string]jetstream.ConsumeContext)
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.conn.Close()
		}
	}

	logx.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping 健康检查
func (c *NATSClient) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errors.New("NATS未连接")
	}
	_, err := c.jetStream.AccountInfo(ctx)
	return err
}
