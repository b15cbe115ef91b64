package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"CredentialDesk/pkg/model"
)

// resultSchemaJSON 模型输出结构。analysis_type 不限定枚举，未知值在归一化阶段处理
const resultSchemaJSON = `{
  "type": "object",
  "properties": {
    "analysis_type":      {"type": ["string", "null"]},
    "generated_prompt":   {"type": ["string", "null"]},
    "suggested_response": {"type": ["string", "null"]},
    "confidence_score":   {"type": ["number", "null"]},
    "sources": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    }
  }
}`

var resultSchema = mustSchema(resultSchemaJSON)

func mustSchema(doc string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("classifier schema: %v", err))
	}
	return schema
}

// rawResult 通过校验后的模型输出
type rawResult struct {
	AnalysisType      *string  `json:"analysis_type"`
	GeneratedPrompt   *string  `json:"generated_prompt"`
	SuggestedResponse *string  `json:"suggested_response"`
	ConfidenceScore   *float64 `json:"confidence_score"`
	Sources           []string `json:"sources"`
}

// Result 归一化后的分类结果
type Result struct {
	AnalysisType      model.AnalysisType
	GeneratedPrompt   *string
	SuggestedResponse *string
	ConfidenceScore   float64
	Sources           []string
}

// decode 严格校验并解码模型回复，任何不符合结构的输出都视为解析失败
func decode(reply string) (*rawResult, error) {
	doc := stripFences(reply)
	if doc == "" {
		return nil, errors.New("模型返回空内容")
	}

	res, err := resultSchema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("模型回复不是合法JSON: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for i, e := range res.Errors() {
			if i >= 5 {
				break
			}
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("模型回复结构不符: %s", strings.Join(msgs, "; "))
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("解码模型回复失败: %w", err)
	}
	return &raw, nil
}

// normalize 应用默认值与取值范围约束
func normalize(raw *rawResult) Result {
	result := Result{
		AnalysisType:      model.AnalysisGeneral,
		ConfidenceScore:   0.5,
		GeneratedPrompt:   nonEmpty(raw.GeneratedPrompt),
		SuggestedResponse: nonEmpty(raw.SuggestedResponse),
	}

	if raw.AnalysisType != nil {
		t := model.AnalysisType(strings.ToLower(strings.TrimSpace(*raw.AnalysisType)))
		if t.Valid() {
			result.AnalysisType = t
		}
	}

	if raw.ConfidenceScore != nil {
		result.ConfidenceScore = clamp(*raw.ConfidenceScore)
	}

	for _, s := range raw.Sources {
		if s = strings.TrimSpace(s); s != "" {
			result.Sources = append(result.Sources, s)
		}
	}

	return result
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// stripFences 去掉模型常见的 ```json 代码块包裹
func stripFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
