package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/messaging"
	"CredentialDesk/pkg/monitor"
	"CredentialDesk/pkg/realtime"
)

// 检查各基础设施是否可用，并在需要时建表
func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logx.Info("开始系统验证...")

	mon := monitor.NewMonitor(nil)

	db, err := database.NewPostgres(cfg)
	if err != nil {
		logx.Errorf("连接数据库失败: %v", err)
	} else {
		defer db.Close()
		if err := db.AutoMigrate(); err != nil {
			logx.Errorf("迁移表结构失败: %v", err)
		}
		mon.RegisterChecker("database", db.Ping)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientID+"-verifier")
	if err != nil {
		logx.Errorf("连接NATS失败: %v", err)
	} else {
		defer natsClient.Close()
		mon.RegisterChecker("nats", natsClient.Ping)
		for _, stream := range []string{messaging.NotificationsStream, messaging.MessagesStream} {
			name := stream
			mon.RegisterChecker("stream:"+name, func(ctx context.Context) error {
				info, err := natsClient.GetStreamInfo(ctx, name)
				if err != nil {
					return err
				}
				logx.Infof("Stream %s: %d 条消息", name, info.State.Msgs)
				return nil
			})
		}
	}

	broker, err := realtime.NewRedisBroker(cfg.Redis.URL, cfg.Redis.Channel)
	if err != nil {
		logx.Errorf("创建Redis客户端失败: %v", err)
	} else {
		defer broker.Close()
		mon.RegisterChecker("redis", broker.Ping)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mon.RunChecks(ctx)

	for _, status := range mon.GetAllStatus() {
		fmt.Printf("%-28s %-10s %s\n", status.Component, status.Status, status.Message)
	}
	if !mon.Healthy() || len(mon.GetAllStatus()) == 0 {
		logx.Error("系统验证未通过")
		os.Exit(1)
	}
	logx.Info("验证完成")
}
