package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"

	"CredentialDesk/pkg/logging"
)

const (
	HeaderSessionID = "X-Session-ID"
	HeaderUserID    = "X-User-ID"
)

// requestContext 把会话与用户写入请求上下文，后续日志都会带上
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := logging.RequestContext{
			SessionID: c.GetHeader(HeaderSessionID),
			UserID:    c.GetHeader(HeaderUserID),
		}
		c.Request = c.Request.WithContext(logging.WithRequest(c.Request.Context(), rc))
		c.Next()
	}
}

// accessLog 请求日志
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logx.WithContext(c.Request.Context()).Infof("%s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// limiterIdleTTL 超过该时长未访问的令牌桶会被回收
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool 按 key 维护令牌桶，空闲的条目惰性回收
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiterPool{
		m:         make(map[string]*limiterEntry),
		rps:       rps,
		burst:     burst,
		ttl:       limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) >= p.ttl {
		p.evictIdle(now)
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// evictIdle 调用方需持有锁
func (p *limiterPool) evictIdle(now time.Time) {
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.ttl {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

// Len 当前维护的 key 数量
func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Allow 是否放行
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// rateLimit 按用户限流，没有用户头时按客户端IP
func rateLimit(pool *limiterPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderUserID)
		if key == "" {
			key = c.ClientIP()
		}
		if !pool.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "发送过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
