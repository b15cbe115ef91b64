package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/model"
)

const (
	readDeadline = 90 * time.Second // 允许心跳丢 2-3 次
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = int64(4 << 10)
	sendBuffer   = 32
)

// client 一个在线的 WebSocket 连接
type client struct {
	id     string
	userID string
	role   model.Role
	conn   *websocket.Conn
	send   chan ChangeEvent
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub 管理所有订阅消息表变更的连接，把 Broker 上的事件转发给每个连接
type Hub struct {
	broker   Broker
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub 创建 Hub
func NewHub(broker Broker) *Hub {
	return &Hub{
		broker: broker,
		upgrader: websocket.Upgrader{
			// 生产环境需校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Run 订阅 Broker 并广播，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) error {
	events, cancel, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case event, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(event)
		}
	}
}

// broadcast 发送缓冲区满的连接视为掉队，直接断开
func (h *Hub) broadcast(event ChangeEvent) {
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- event:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logx.Infof("实时连接 %s 发送缓冲已满，断开", c.id)
		h.remove(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Count 当前在线连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket gin 路由: GET /api/v1/realtime?role=&user_id=
func (h *Hub) HandleWebSocket(c *gin.Context) {
	role := model.Role(c.Query("role"))
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role 必须是 admin 或 developer"})
		return
	}
	userID := c.Query("user_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logx.WithContext(c.Request.Context()).Errorf("用户 %s 升级 WebSocket 失败: %v", userID, err)
		return
	}

	cl := &client{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		conn:   conn,
		send:   make(chan ChangeEvent, sendBuffer),
	}
	h.add(cl)
	logx.Infof("实时连接建立 user=%s role=%s, 当前在线 %d", userID, role, h.Count())

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

// readLoop 只处理控制帧与心跳，读失败即视为断开
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
		logx.Infof("实时连接关闭 user=%s", c.userID)
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				logx.Errorf("推送变更事件给 %s 失败: %v", c.userID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
