package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/monitor"
)

// HealthServer 后台 worker 的健康检查与指标端口
type HealthServer struct {
	srv *http.Server
}

// NewHealthServer 创建健康检查服务，mon 为空时 /ready 总是就绪
func NewHealthServer(port string, mon *monitor.Monitor) *HealthServer {
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := NewHandlers(Deps{Monitor: mon})
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &HealthServer{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 在后台启动
func (h *HealthServer) Start() {
	go func() {
		logx.Infof("健康检查服务启动在 %s", h.srv.Addr)
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("健康检查服务启动失败: %v", err)
		}
	}()
}

// Shutdown 关闭
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
