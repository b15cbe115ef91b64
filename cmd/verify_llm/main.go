package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/classifier"
	"CredentialDesk/pkg/config"
	"CredentialDesk/pkg/llm"
	"CredentialDesk/pkg/logging"
	"CredentialDesk/pkg/model"
)

// printStore 只打印分析结果，不写数据库
type printStore struct{}

func (printStore) Create(ctx context.Context, analysis *model.AIAnalysis) error {
	out, _ := json.MarshalIndent(analysis, "", "  ")
	fmt.Println(string(out))
	return nil
}

var samples = []string{
	"Login button broken on the pharmacist onboarding page",
	"How do I resend an invitation to a technician who lost the email?",
	"Could we add a CSV export for the license expiry report?",
	"Thanks for the quick deploy yesterday!",
}

func main() {
	text := flag.String("text", "", "只分类这一条文本")
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg, err := config.LoadConfig(config.GetDefaultConfigPath())
	logx.Must(err)
	logging.Setup(cfg)

	llmClient := llm.NewLLMClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.ModelName, cfg.LLM.Timeout)
	c := classifier.NewClassifier(llmClient, printStore{}, cfg.LLMTemperature())
	logx.Infof("开始验证大模型接入, 模型 %s", llmClient.Model())

	texts := samples
	if *text != "" {
		texts = []string{*text}
	}

	failed := 0
	for i, t := range texts {
		fmt.Printf("\n===== 样例 %d =====\n%s\n", i+1, t)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+5*time.Second)
		_, err := c.Classify(ctx, fmt.Sprintf("sample-%d", i+1), t, classifier.SenderInfo{Name: "Verifier", Role: model.RoleAdmin})
		cancel()
		if err != nil {
			failed++
			logx.Errorf("样例 %d 分类失败: %v", i+1, err)
		}
	}

	if failed > 0 {
		logx.Errorf("大模型验证完成, %d/%d 失败", failed, len(texts))
		os.Exit(1)
	}
	logx.Info("大模型验证完成")
}
