package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"CredentialDesk/pkg/classifier"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/database/dbtest"
	"CredentialDesk/pkg/llm"
	"CredentialDesk/pkg/model"
	"CredentialDesk/pkg/notify"
	"CredentialDesk/pkg/realtime"
	"CredentialDesk/pkg/service"
)

type replyChatter struct{ reply string }

func (r replyChatter) Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	return r.reply, nil
}

type okEngine struct{}

func (okEngine) Send(ctx context.Context, p notify.Payload) (*notify.EngineResult, error) {
	return &notify.EngineResult{Results: []notify.ChannelResult{{Channel: model.ChannelEmail, Success: true}}}, nil
}

type testEnv struct {
	db     *database.Postgres
	router http.Handler
}

func newTestEnv(t *testing.T, reply string, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	ctx := context.Background()
	_ = db.Profile().Save(ctx, &model.Profile{ID: "admin-1", FirstName: "Ada", Email: "ada@pharmacy.test", Role: model.RoleAdmin, EmailNotifications: true})
	_ = db.Profile().Save(ctx, &model.Profile{ID: "dev-1", FirstName: "Dev", Email: "dev@pharmacy.test", Role: model.RoleDeveloper, EmailNotifications: true})

	if opts.SendRPS == 0 {
		opts.SendRPS, opts.SendBurst = 100, 100
	}
	srv := NewServer(opts)
	handlers := NewHandlers(Deps{
		Messages:   service.NewMessageService(db, nil, realtime.NewMemoryBroker(8)),
		Analyses:   service.NewAnalysisService(db),
		Dispatcher: notify.NewDispatcher(db, okEngine{}),
		Classifier: classifier.NewClassifier(replyChatter{reply: reply}, db.Analysis(), 0.1),
	})
	srv.SetupRoutes(handlers, nil)
	return &testEnv{db: db, router: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

const bugReply = `{"analysis_type":"bug_report","generated_prompt":"Fix the login button","suggested_response":null,"confidence_score":0.9,"sources":["login"]}`

func TestSendReplyAndThread(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{})

	w := env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "Login button broken", SenderRole: "admin"}, HeaderUserID, "admin-1", HeaderSessionID, "s-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var root model.Message
	decodeData(t, w, &root)
	if root.Status != model.MessageStatusSent || root.SenderID != "admin-1" {
		t.Fatalf("unexpected message %+v", root)
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "On it", SenderID: "dev-1", SenderRole: "developer", ReplyTo: root.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var reply model.Message
	decodeData(t, w, &reply)
	if reply.ThreadID == nil || *reply.ThreadID != root.ID {
		t.Fatalf("reply must carry thread_id = root id")
	}

	w = env.do(t, http.MethodGet, "/api/v1/messages/"+root.ID+"/thread", nil)
	var thread []model.Message
	decodeData(t, w, &thread)
	if len(thread) != 2 {
		t.Fatalf("expected 2 messages in thread, got %d", len(thread))
	}

	w = env.do(t, http.MethodGet, "/api/v1/messages?limit=1", nil)
	var list []model.Message
	decodeData(t, w, &list)
	if len(list) != 1 || list[0].ID != reply.ID {
		t.Fatalf("expected newest message first")
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages/"+root.ID+"/read", MarkReadRequest{ViewerRole: "developer"})
	var read model.Message
	decodeData(t, w, &read)
	if read.Status != model.MessageStatusRead {
		t.Fatalf("expected read, got %s", read.Status)
	}
}

func TestSendValidationErrors(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{})

	cases := []SendMessageRequest{
		{Body: "   ", SenderID: "admin-1", SenderRole: "admin"},
		{Body: "hi", SenderID: "admin-1", SenderRole: "owner"},
		{Body: "hi", SenderID: "admin-1", SenderRole: "admin", ReplyTo: "missing"},
	}
	for _, req := range cases {
		if w := env.do(t, http.MethodPost, "/api/v1/messages", req); w.Code != http.StatusBadRequest {
			t.Fatalf("request %+v: expected 400, got %d", req, w.Code)
		}
	}
	if w := env.do(t, http.MethodGet, "/api/v1/messages?limit=ten", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestSendIsRateLimited(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{SendRPS: 0.001, SendBurst: 1})
	req := SendMessageRequest{Body: "hello", SenderRole: "admin"}

	if w := env.do(t, http.MethodPost, "/api/v1/messages", req, HeaderUserID, "admin-1"); w.Code != http.StatusCreated {
		t.Fatalf("first send expected 201, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/messages", req, HeaderUserID, "admin-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second send expected 429, got %d", w.Code)
	}
	// 其它用户不受影响
	if w := env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "hi", SenderRole: "developer"}, HeaderUserID, "dev-1"); w.Code != http.StatusCreated {
		t.Fatalf("other sender expected 201, got %d", w.Code)
	}
}

func TestClassifyAndReview(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{})

	w := env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "Login button broken", SenderID: "admin-1", SenderRole: "admin"})
	var msg model.Message
	decodeData(t, w, &msg)

	w = env.do(t, http.MethodPost, "/api/v1/messages/"+msg.ID+"/classify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var analysis model.AIAnalysis
	decodeData(t, w, &analysis)
	if analysis.AnalysisType != model.AnalysisBugReport || analysis.GeneratedPrompt == nil {
		t.Fatalf("unexpected analysis %+v", analysis)
	}

	approved := true
	w = env.do(t, http.MethodPost, "/api/v1/analyses/"+analysis.ID+"/review", ReviewRequest{Approved: &approved, Notes: "ship it"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/messages/"+msg.ID+"/analyses/latest", nil)
	var latest model.AIAnalysis
	decodeData(t, w, &latest)
	if latest.DeveloperApproved == nil || !*latest.DeveloperApproved {
		t.Fatalf("expected approved analysis")
	}

	if w := env.do(t, http.MethodPost, "/api/v1/analyses/missing/review", ReviewRequest{Approved: &approved}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/messages/missing/classify", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestClassifyParseFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t, "not json at all", Options{})

	w := env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "Question about invites", SenderID: "admin-1", SenderRole: "admin"})
	var msg model.Message
	decodeData(t, w, &msg)

	if w := env.do(t, http.MethodPost, "/api/v1/messages/"+msg.ID+"/classify", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	analyses, _ := env.db.Analysis().ListByMessage(context.Background(), msg.ID)
	if len(analyses) != 0 {
		t.Fatalf("expected no analysis rows")
	}
}

func TestProcessNotifications(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{})

	w := env.do(t, http.MethodPost, "/api/v1/notifications/process", ProcessNotificationsRequest{MessageID: "missing"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown message, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/messages", SendMessageRequest{Body: "Deploy done", SenderID: "dev-1", SenderRole: "developer"})
	var msg model.Message
	decodeData(t, w, &msg)

	w = env.do(t, http.MethodPost, "/api/v1/notifications/process", ProcessNotificationsRequest{MessageID: msg.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Success bool `json:"success"`
		Sent    int  `json:"sent"`
		Failed  int  `json:"failed"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/notifications/process", ProcessNotificationsRequest{MessageID: msg.ID})
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusOK || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("second run must report zero counts, got %s", w.Body.String())
	}
}

func TestTemplateEmailAndSMSEndpoints(t *testing.T) {
	var got map[string]interface{}
	fn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer fn.Close()

	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)
	srv := NewServer(Options{SendRPS: 10, SendBurst: 10})
	srv.SetupRoutes(NewHandlers(Deps{
		Messages:   service.NewMessageService(db, nil, nil),
		Analyses:   service.NewAnalysisService(db),
		Dispatcher: notify.NewDispatcher(db, okEngine{}),
		Mailer:     notify.NewTemplateMailer(fn.URL, "fn-key", time.Second),
	}), nil)
	env := &testEnv{db: db, router: srv.Handler()}

	w := env.do(t, http.MethodPost, "/api/v1/notifications/email", TemplateEmailRequest{Type: "welcome", To: "grace@pharmacy.test", FirstName: "Grace"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got["type"] != "welcome" || got["firstName"] != "Grace" {
		t.Fatalf("unexpected template body %v", got)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/notifications/sms", SMSRequest{To: "+15550001", Body: "hi"}); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without sms channel, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/messages/x/classify", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without classifier, got %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, bugReply, Options{})
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		if w := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
