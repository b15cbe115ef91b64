package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/api"
	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/logging"
	"CredentialDesk/pkg/messaging"
	"CredentialDesk/pkg/monitor"
	"CredentialDesk/pkg/notify"
	"CredentialDesk/pkg/scheduler"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logging.Setup(cfg)
	logx.Info("启动通知分发服务...")

	db, err := database.NewPostgres(cfg)
	logx.Must(err)
	defer db.Close()

	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientID+"-dispatcher")
	logx.Must(err)
	defer natsClient.Close()

	engine, err := notify.NewEngine(cfg)
	logx.Must(err)
	dispatcher := notify.NewDispatcher(db, engine)

	// 消费通知任务，失败的任务不会重投
	err = natsClient.Subscribe(messaging.NotificationsStream, cfg.Dispatcher.Consumer, messaging.SubjectNotificationDispatch,
		func(ctx context.Context, data []byte) error {
			job, err := messaging.DecodeNotificationJob(data)
			if err != nil {
				return err
			}
			ctx = logging.WithRequest(ctx, logging.RequestContext{SessionID: job.Source + ":" + job.MessageID})
			_, err = dispatcher.ProcessMessageNotifications(ctx, job.MessageID)
			return err
		})
	logx.Must(err)

	// 定期补发丢失的通知任务
	sched := scheduler.NewScheduler(db.NotificationLog(), messaging.NewJobQueue(natsClient),
		cfg.Scheduler.SweepSpec, cfg.Scheduler.StaleThreshold)
	logx.Must(sched.Start())

	mon := monitor.NewMonitor(nil)
	mon.RegisterChecker("database", db.Ping)
	mon.RegisterChecker("nats", natsClient.Ping)
	health := api.NewHealthServer(cfg.Dispatcher.HealthPort, mon)
	health.Start()

	logx.Info("通知分发服务已启动，等待任务...")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logx.Info("接收到中断信号，正在关闭服务...")
	sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(ctx)
}
