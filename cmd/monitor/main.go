package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/logging"
	"CredentialDesk/pkg/monitor"
)

func main() {
	_ = godotenv.Load(".env")

	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logging.Setup(cfg)
	logx.Info("启动监控服务...")

	// 创建监控系统
	mon := monitor.NewMonitor(func(component, status, message string) {
		logx.Errorf("告警: 组件[%s]状态变为[%s], 消息: %s", component, status, message)
	})

	// 注册组件
	mon.RegisterHTTPEndpoint("api-service", fmt.Sprintf("http://localhost:%s/ready", cfg.API.Port))
	mon.RegisterHTTPEndpoint("dispatcher-service", fmt.Sprintf("http://localhost:%s/ready", cfg.Dispatcher.HealthPort))
	mon.RegisterHTTPEndpoint("classifier-service", fmt.Sprintf("http://localhost:%s/ready", cfg.Classifier.HealthPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.StartChecking(ctx, cfg.Monitor.Interval)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, mon.GetAllStatus())
	})

	srv := &http.Server{Addr: ":" + cfg.Monitor.Port, Handler: router}
	go func() {
		logx.Infof("监控服务启动在 :%s", cfg.Monitor.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("启动HTTP服务器失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
