// pkg/model/analysis.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnalysisType AI分类结果
type AnalysisType string

const (
	AnalysisBugReport      AnalysisType = "bug_report"
	AnalysisQuestion       AnalysisType = "question"
	AnalysisFeatureRequest AnalysisType = "feature_request"
	AnalysisGeneral        AnalysisType = "general"
)

// AnalysisTypes 全部合法分类
var AnalysisTypes = []AnalysisType{
	AnalysisBugReport,
	AnalysisQuestion,
	AnalysisFeatureRequest,
	AnalysisGeneral,
}

// Valid 是否为合法分类
func (t AnalysisType) Valid() bool {
	for _, v := range AnalysisTypes {
		if t == v {
			return true
		}
	}
	return false
}

// AIAnalysis 消息的AI分析结果
type AIAnalysis struct {
	ID                string                      `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID         string                      `gorm:"type:uuid;not null;index" json:"message_id"`
	AnalysisType      AnalysisType                `gorm:"type:varchar(30);not null" json:"analysis_type"`
	GeneratedPrompt   *string                     `gorm:"type:text" json:"generated_prompt"`
	SuggestedResponse *string                     `gorm:"type:text" json:"suggested_response"`
	ConfidenceScore   float64                     `gorm:"not null;default:0.5" json:"confidence_score"`
	Sources           datatypes.JSONSlice[string] `json:"sources"`
	DeveloperApproved *bool                       `json:"developer_approved"`
	DeveloperNotes    string                      `gorm:"type:text" json:"developer_notes"`
	ProcessedAt       time.Time                   `json:"processed_at"`
	CreatedAt         time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

func (a *AIAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (AIAnalysis) TableName() string {
	return "ai_analysis"
}
