package service

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/model"
)

// AnalysisService AI 分析的查询与人工审核
type AnalysisService struct {
	db *database.Postgres
}

// NewAnalysisService 创建分析服务
func NewAnalysisService(db *database.Postgres) *AnalysisService {
	return &AnalysisService{db: db}
}

// Latest 返回消息最近一次的分析
func (s *AnalysisService) Latest(ctx context.Context, messageID string) (*model.AIAnalysis, error) {
	return s.db.Analysis().LatestByMessage(ctx, messageID)
}

// List 返回消息的全部分析，最新的在前
func (s *AnalysisService) List(ctx context.Context, messageID string) ([]*model.AIAnalysis, error) {
	return s.db.Analysis().ListByMessage(ctx, messageID)
}

// Review 开发者审核一条分析
func (s *AnalysisService) Review(ctx context.Context, analysisID string, approved bool, notes string) (*model.AIAnalysis, error) {
	if analysisID == "" {
		return nil, apperr.Validation("review analysis", "缺少分析 ID")
	}
	if err := s.db.Analysis().Review(ctx, analysisID, approved, strings.TrimSpace(notes)); err != nil {
		return nil, err
	}
	logx.WithContext(ctx).Infof("分析 %s 已审核, approved=%v", analysisID, approved)
	return s.db.Analysis().GetByID(ctx, analysisID)
}
