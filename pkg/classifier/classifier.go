package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/datatypes"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/llm"
	"CredentialDesk/pkg/metrics"
	"CredentialDesk/pkg/model"
)

// Chatter 大模型调用接口
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// AnalysisStore AI分析的持久化接口
type AnalysisStore interface {
	Create(ctx context.Context, analysis *model.AIAnalysis) error
}

// SenderInfo 发送者信息，作为分类上下文
type SenderInfo struct {
	Name  string
	Role  model.Role
	Email string
}

// Classifier 消息分类器
type Classifier struct {
	llm         Chatter
	store       AnalysisStore
	temperature float64
	now         func() time.Time
}

// NewClassifier 创建分类器
func NewClassifier(chatter Chatter, store AnalysisStore, temperature float64) *Classifier {
	return &Classifier{
		llm:         chatter,
		store:       store,
		temperature: temperature,
		now:         time.Now,
	}
}

// Classify 调用大模型分类消息并保存一条分析记录。
// 回复无法解析时返回 ParseError，不写入任何记录。
func (c *Classifier) Classify(ctx context.Context, messageID, text string, sender SenderInfo) (*model.AIAnalysis, error) {
	logger := logx.WithContext(ctx)

	reply, err := c.llm.Chat(ctx, buildMessages(text, sender), c.temperature)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("llm_error").Inc()
		return nil, fmt.Errorf("调用大模型失败: %w", err)
	}

	raw, err := decode(reply)
	if err != nil {
		metrics.ClassificationsTotal.WithLabelValues("parse_error").Inc()
		logger.Errorf("消息 %s 的分类结果无法解析: %v", messageID, err)
		return nil, apperr.Parse("classify", err)
	}
	result := normalize(raw)

	analysis := &model.AIAnalysis{
		MessageID:         messageID,
		AnalysisType:      result.AnalysisType,
		GeneratedPrompt:   result.GeneratedPrompt,
		SuggestedResponse: result.SuggestedResponse,
		ConfidenceScore:   result.ConfidenceScore,
		Sources:           datatypes.JSONSlice[string](result.Sources),
		ProcessedAt:       c.now(),
	}
	if err := c.store.Create(ctx, analysis); err != nil {
		metrics.ClassificationsTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}

	metrics.ClassificationsTotal.WithLabelValues("ok").Inc()
	logger.Infof("消息 %s 分类完成: type=%s confidence=%.2f", messageID, analysis.AnalysisType, analysis.ConfidenceScore)
	return analysis, nil
}

func buildMessages(text string, sender SenderInfo) []llm.Message {
	name := sender.Name
	if name == "" {
		name = "unknown"
	}
	role := string(sender.Role)
	if role == "" {
		role = "unknown"
	}

	return []llm.Message{
		{Role: "system", Content: classificationPrompt},
		{Role: "system", Content: domainContext},
		{Role: "user", Content: fmt.Sprintf("Sender: %s (%s)\n\nMessage:\n%s", name, role, text)},
	}
}
