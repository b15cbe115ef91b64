package classifier

import (
	"context"
	"errors"
	"testing"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/llm"
	"CredentialDesk/pkg/model"
)

type stubChatter struct {
	reply    string
	err      error
	messages []llm.Message
	temp     float64
}

func (s *stubChatter) Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	s.messages = messages
	s.temp = temperature
	return s.reply, s.err
}

type memStore struct {
	saved []*model.AIAnalysis
}

func (m *memStore) Create(ctx context.Context, a *model.AIAnalysis) error {
	m.saved = append(m.saved, a)
	return nil
}

func TestClassifyBugReport(t *testing.T) {
	chatter := &stubChatter{reply: "```json\n{\"analysis_type\":\"bug_report\",\"generated_prompt\":\"Fix the login button click handler\",\"suggested_response\":null,\"confidence_score\":0.92,\"sources\":[\"login page\",\"auth flow\"]}\n```"}
	store := &memStore{}
	c := NewClassifier(chatter, store, 0.1)

	got, err := c.Classify(context.Background(), "m1", "Login button broken", SenderInfo{Name: "Ada", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got.AnalysisType != model.AnalysisBugReport {
		t.Fatalf("expected bug_report, got %s", got.AnalysisType)
	}
	if got.GeneratedPrompt == nil || *got.GeneratedPrompt == "" {
		t.Fatalf("expected generated prompt")
	}
	if got.SuggestedResponse != nil {
		t.Fatalf("expected nil suggested response")
	}
	if len(got.Sources) != 2 || got.Sources[0] != "login page" {
		t.Fatalf("unexpected sources %v", got.Sources)
	}
	if len(store.saved) != 1 || store.saved[0].MessageID != "m1" {
		t.Fatalf("expected one persisted analysis")
	}
	if chatter.temp != 0.1 {
		t.Fatalf("expected temperature 0.1, got %v", chatter.temp)
	}
	// 两条系统提示 + 一条用户消息
	if len(chatter.messages) != 3 || chatter.messages[0].Role != "system" || chatter.messages[1].Role != "system" {
		t.Fatalf("unexpected prompt layout %+v", chatter.messages)
	}
}

func TestClassifyCoercesTypeAndClampsConfidence(t *testing.T) {
	cases := []struct {
		name       string
		reply      string
		wantType   model.AnalysisType
		wantConfid float64
	}{
		{"unknown type, high score", `{"analysis_type":"complaint","confidence_score":7}`, model.AnalysisGeneral, 1},
		{"missing type, negative score", `{"confidence_score":-0.3}`, model.AnalysisGeneral, 0},
		{"missing score", `{"analysis_type":"question","suggested_response":"Use the invite link."}`, model.AnalysisQuestion, 0.5},
		{"mixed case type", `{"analysis_type":" Feature_Request ","confidence_score":0.7}`, model.AnalysisFeatureRequest, 0.7},
		{"null fields", `{"analysis_type":null,"confidence_score":null,"sources":null}`, model.AnalysisGeneral, 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{}
			c := NewClassifier(&stubChatter{reply: tc.reply}, store, 0.1)
			got, err := c.Classify(context.Background(), "m", "text", SenderInfo{})
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got.AnalysisType != tc.wantType {
				t.Fatalf("expected %s, got %s", tc.wantType, got.AnalysisType)
			}
			if got.ConfidenceScore != tc.wantConfid {
				t.Fatalf("expected confidence %v, got %v", tc.wantConfid, got.ConfidenceScore)
			}
		})
	}
}

func TestClassifyParseFailureWritesNothing(t *testing.T) {
	replies := []string{
		"I think this is a bug report.",
		`{"analysis_type": "bug_report"`,
		`["bug_report"]`,
		`{"confidence_score":"high"}`,
		`{"sources":[1,2]}`,
		"",
	}

	for _, reply := range replies {
		store := &memStore{}
		c := NewClassifier(&stubChatter{reply: reply}, store, 0.1)
		_, err := c.Classify(context.Background(), "m", "text", SenderInfo{})
		if !apperr.Is(err, apperr.KindParse) {
			t.Fatalf("reply %q: expected parse error, got %v", reply, err)
		}
		if len(store.saved) != 0 {
			t.Fatalf("reply %q: expected no analysis row", reply)
		}
	}
}

func TestClassifyLLMFailure(t *testing.T) {
	store := &memStore{}
	upstream := apperr.ExternalService("llm chat", errors.New("boom"))
	c := NewClassifier(&stubChatter{err: upstream}, store, 0.1)

	_, err := c.Classify(context.Background(), "m", "text", SenderInfo{})
	if !apperr.Is(err, apperr.KindExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no analysis row")
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":            `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Fatalf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
