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
	"CredentialDesk/pkg/model"
	"CredentialDesk/pkg/monitor"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logging.Setup(cfg)
	logx.Info("启动消息分类服务...")

	db, err := database.NewPostgres(cfg)
	logx.Must(err)
	defer db.Close()

	// 创建LLM客户端
	llmClient := llm.NewLLMClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.ModelName, cfg.LLM.Timeout)
	c := classifier.NewClassifier(llmClient, db.Analysis(), cfg.LLMTemperature())

	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientID+"-classifier")
	logx.Must(err)
	defer natsClient.Close()

	// 订阅新消息事件，分类失败不会重试
	err = natsClient.Subscribe(messaging.MessagesStream, cfg.Classifier.Consumer, messaging.SubjectMessageCreated,
		func(ctx context.Context, data []byte) error {
			event, err := messaging.DecodeMessageCreated(data)
			if err != nil {
				return err
			}
			ctx = logging.WithRequest(ctx, logging.RequestContext{UserID: event.SenderID})
			_, err = c.Classify(ctx, event.MessageID, event.Body, classifier.SenderInfo{
				Name: event.SenderName,
				Role: model.Role(event.SenderRole),
			})
			return err
		})
	logx.Must(err)

	mon := monitor.NewMonitor(nil)
	mon.RegisterChecker("database", db.Ping)
	mon.RegisterChecker("nats", natsClient.Ping)
	health := api.NewHealthServer(cfg.Classifier.HealthPort, mon)
	health.Start()

	logx.Infof("消息分类服务已启动，模型 %s", llmClient.Model())

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logx.Info("接收到中断信号，正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(ctx)
}
