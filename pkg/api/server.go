package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/realtime"
)

// Options 服务器参数
type Options struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendRPS      float64
	SendBurst    int
}

// Server API服务器
type Server struct {
	router  *gin.Engine
	srv     *http.Server
	limiter *limiterPool
}

// NewServer 创建新的API服务器
func NewServer(opts Options) *Server {
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(requestContext())
	router.Use(accessLog())

	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	return &Server{
		router:  router,
		srv:     srv,
		limiter: newLimiterPool(opts.SendRPS, opts.SendBurst),
	}
}

// SetupRoutes 设置路由，hub 为空时不开放实时订阅
func (s *Server) SetupRoutes(handlers *Handlers, hub *realtime.Hub) {
	// 健康检查与指标
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 路由组
	v1 := s.router.Group("/api/v1")
	{
		// 消息
		v1.GET("/messages", handlers.ListMessages)
		v1.POST("/messages", rateLimit(s.limiter), handlers.SendMessage)
		v1.GET("/messages/:id/thread", handlers.GetThread)
		v1.POST("/messages/:id/read", handlers.MarkAsRead)

		// AI 分析
		v1.POST("/messages/:id/classify", handlers.ClassifyMessage)
		v1.GET("/messages/:id/analyses", handlers.ListAnalyses)
		v1.GET("/messages/:id/analyses/latest", handlers.LatestAnalysis)
		v1.POST("/analyses/:id/review", handlers.ReviewAnalysis)

		// 通知
		v1.POST("/notifications/process", handlers.ProcessNotifications)
		v1.POST("/notifications/email", handlers.SendTemplateEmail)
		v1.POST("/notifications/sms", handlers.SendSMS)

		if hub != nil {
			v1.GET("/realtime", hub.HandleWebSocket)
		}
	}
}

// Handler 返回路由，测试中使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 在后台启动服务器
func (s *Server) Start() {
	go func() {
		logx.Infof("API服务器启动在 %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("启动服务器失败: %v", err)
		}
	}()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	logx.Info("正在关闭服务器...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	logx.Info("服务器已关闭")
	return nil
}
