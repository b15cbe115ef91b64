// pkg/database/analysis.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/model"
)

type AnalysisDB struct {
	db *gorm.DB
}

func (p *Postgres) Analysis() *AnalysisDB {
	return &AnalysisDB{db: p.db}
}

func (a *AnalysisDB) Create(ctx context.Context, analysis *model.AIAnalysis) error {
	if err := a.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return fmt.Errorf("保存AI分析失败: %w", err)
	}
	return nil
}

func (a *AnalysisDB) GetByID(ctx context.Context, analysisID string) (*model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	err := a.db.WithContext(ctx).First(&analysis, "id = ?", analysisID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("get analysis", "AI分析不存在")
		}
		return nil, fmt.Errorf("获取AI分析失败: %w", err)
	}
	return &analysis, nil
}

// LatestByMessage 返回消息最新的一条分析
func (a *AnalysisDB) LatestByMessage(ctx context.Context, messageID string) (*model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	err := a.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("latest analysis", "该消息暂无AI分析")
		}
		return nil, fmt.Errorf("获取最新AI分析失败: %w", err)
	}
	return &analysis, nil
}

func (a *AnalysisDB) ListByMessage(ctx context.Context, messageID string) ([]*model.AIAnalysis, error) {
	var analyses []*model.AIAnalysis
	err := a.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("查询AI分析失败: %w", err)
	}
	return analyses, nil
}

// Review 记录开发者的审批结果
func (a *AnalysisDB) Review(ctx context.Context, analysisID string, approved bool, notes string) error {
	res := a.db.WithContext(ctx).Model(&model.AIAnalysis{}).
		Where("id = ?", analysisID).
		Updates(map[string]interface{}{
			"developer_approved": approved,
			"developer_notes":    notes,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("更新AI分析审批失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("review analysis", "AI分析不存在")
	}
	return nil
}
