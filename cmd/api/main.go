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
	"CredentialDesk/pkg/classifier"
	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/llm"
	"CredentialDesk/pkg/logging"
	"CredentialDesk/pkg/messaging"
	"CredentialDesk/pkg/monitor"
	"CredentialDesk/pkg/notify"
	"CredentialDesk/pkg/realtime"
	"CredentialDesk/pkg/service"
)

func main() {
	_ = godotenv.Load(".env")

	// 加载配置
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logging.Setup(cfg)
	logx.Info("启动API服务...")

	db, err := database.NewPostgres(cfg)
	logx.Must(err)
	defer db.Close()

	// 连接NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientID+"-api")
	logx.Must(err)
	defer natsClient.Close()
	queue := messaging.NewJobQueue(natsClient)

	// 实时推送
	broker, err := realtime.NewRedisBroker(cfg.Redis.URL, cfg.Redis.Channel)
	logx.Must(err)
	defer broker.Close()
	hub := realtime.NewHub(broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil {
			logx.Errorf("实时推送退出: %v", err)
		}
	}()

	engine, err := notify.NewEngine(cfg)
	logx.Must(err)

	llmClient := llm.NewLLMClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.ModelName, cfg.LLM.Timeout)

	mon := monitor.NewMonitor(func(component, status, message string) {
		logx.Errorf("告警: 组件[%s]状态变为[%s], 消息: %s", component, status, message)
	})
	mon.RegisterChecker("database", db.Ping)
	mon.RegisterChecker("nats", natsClient.Ping)
	mon.RegisterChecker("redis", broker.Ping)

	n := cfg.Notification
	handlers := api.NewHandlers(api.Deps{
		Messages:   service.NewMessageService(db, queue, broker),
		Analyses:   service.NewAnalysisService(db),
		Dispatcher: notify.NewDispatcher(db, engine),
		Classifier: classifier.NewClassifier(llmClient, db.Analysis(), cfg.LLMTemperature()),
		Mailer:     notify.NewTemplateMailer(n.EmailFunctionURL, n.EmailFunctionKey, n.Timeout),
		SMS:        notify.NewSMSChannel(n.Twilio.BaseURL, n.Twilio.AccountSID, n.Twilio.AuthToken, n.Twilio.From, n.Timeout),
		Monitor:    mon,
	})

	// 创建并启动服务器
	server := api.NewServer(api.Options{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		SendRPS:      cfg.API.SendRPS,
		SendBurst:    cfg.API.SendBurst,
	})
	server.SetupRoutes(handlers, hub)
	server.Start()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Errorf("服务器关闭失败: %v", err)
	}
	cancel()
}
