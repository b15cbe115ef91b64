package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/database"
	"CredentialDesk/pkg/database/dbtest"
	"CredentialDesk/pkg/messaging"
	"CredentialDesk/pkg/model"
	"CredentialDesk/pkg/realtime"
)

type stubQueue struct {
	mu         sync.Mutex
	enqueueErr error
	jobs       []string
	events     []messaging.MessageCreatedEvent
}

func (q *stubQueue) EnqueueNotification(ctx context.Context, messageID, source string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, messageID)
	return nil
}

func (q *stubQueue) PublishMessageCreated(ctx context.Context, event messaging.MessageCreatedEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func seedProfiles(t *testing.T, db *database.Postgres) {
	t.Helper()
	ctx := context.Background()
	profiles := []*model.Profile{
		{ID: "admin-1", Email: "ada@pharmacy.test", FirstName: "Ada", LastName: "Lovelace", Role: model.RoleAdmin, EmailNotifications: true},
		{ID: "dev-1", Email: "dev1@pharmacy.test", FirstName: "Dev", LastName: "One", Phone: "+15550001", Role: model.RoleDeveloper, EmailNotifications: true},
		{ID: "dev-2", Email: "dev2@pharmacy.test", FirstName: "Dev", LastName: "Two", Role: model.RoleDeveloper, EmailNotifications: true},
		{ID: "dev-3", Email: "", FirstName: "No", LastName: "Mail", Role: model.RoleDeveloper, EmailNotifications: true},
		{ID: "dev-4", Email: "quiet@pharmacy.test", Role: model.RoleDeveloper, EmailNotifications: false},
	}
	for _, p := range profiles {
		if err := db.Profile().Save(ctx, p); err != nil {
			t.Fatalf("seed profile %s: %v", p.ID, err)
		}
	}
}

func newService(t *testing.T) (*MessageService, *database.Postgres, *stubQueue, *realtime.MemoryBroker) {
	t.Helper()
	db := dbtest.New(t)
	seedProfiles(t, db)
	queue := &stubQueue{}
	broker := realtime.NewMemoryBroker(16)
	return NewMessageService(db, queue, broker), db, queue, broker
}

func TestSendMessageCreatesPendingLogs(t *testing.T) {
	svc, db, queue, broker := newService(t)
	ctx := context.Background()
	events, cancel, _ := broker.Subscribe(ctx)
	defer cancel()

	msg, err := svc.SendMessage(ctx, SendRequest{Body: "  Login button broken  ", SenderID: "admin-1", SenderRole: model.RoleAdmin})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.Body != "Login button broken" || msg.RecipientRole != model.RoleDeveloper || msg.Status != model.MessageStatusSent {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.ThreadID != nil || msg.ReplyToID != nil {
		t.Fatalf("root message must not carry thread fields")
	}

	logs, err := db.NotificationLog().Pending(ctx, msg.ID, model.ChannelEmail)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	// dev-1, dev-2, dev-3; dev-4 关闭了邮件通知
	if len(logs) != 3 {
		t.Fatalf("expected 3 pending logs, got %d", len(logs))
	}
	for _, l := range logs {
		if l.UserID == "dev-3" && l.MetadataString("email") != "" {
			t.Fatalf("expected empty email snapshot for dev-3")
		}
		if l.UserID == "dev-1" && l.MetadataString("phone") != "+15550001" {
			t.Fatalf("expected phone snapshot for dev-1")
		}
	}

	if len(queue.jobs) != 1 || queue.jobs[0] != msg.ID {
		t.Fatalf("expected one notification job, got %v", queue.jobs)
	}
	if len(queue.events) != 1 || queue.events[0].SenderName != "Ada Lovelace" {
		t.Fatalf("unexpected message events %+v", queue.events)
	}

	select {
	case ev := <-events:
		if ev.Type != realtime.EventInsert || ev.New.ID != msg.ID {
			t.Fatalf("unexpected change event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected INSERT change event")
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, db, queue, _ := newService(t)
	ctx := context.Background()

	cases := []SendRequest{
		{Body: "   ", SenderID: "admin-1", SenderRole: model.RoleAdmin},
		{Body: "hi", SenderID: "admin-1", SenderRole: "pharmacist"},
		{Body: "hi", SenderRole: model.RoleAdmin},
		{Body: "hi", SenderID: "admin-1", SenderRole: model.RoleAdmin, ReplyTo: "missing"},
	}
	for _, req := range cases {
		if _, err := svc.SendMessage(ctx, req); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("request %+v: expected validation error, got %v", req, err)
		}
	}

	msgs, _ := db.Message().List(ctx, 50)
	if len(msgs) != 0 {
		t.Fatalf("expected no stored messages, got %d", len(msgs))
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("expected no jobs")
	}
}

func TestReplyKeepsThreadRoot(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	root, err := svc.SendMessage(ctx, SendRequest{Body: "root", SenderID: "admin-1", SenderRole: model.RoleAdmin})
	if err != nil {
		t.Fatalf("send root: %v", err)
	}
	reply, err := svc.SendMessage(ctx, SendRequest{Body: "reply", SenderID: "dev-1", SenderRole: model.RoleDeveloper, ReplyTo: root.ID})
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	nested, err := svc.SendMessage(ctx, SendRequest{Body: "nested", SenderID: "admin-1", SenderRole: model.RoleAdmin, ReplyTo: reply.ID})
	if err != nil {
		t.Fatalf("send nested: %v", err)
	}

	if reply.ThreadID == nil || *reply.ThreadID != root.ID || *reply.ReplyToID != root.ID {
		t.Fatalf("reply must point at root")
	}
	if nested.ThreadID == nil || *nested.ThreadID != root.ID {
		t.Fatalf("nested reply must keep the root thread id")
	}
	if *nested.ReplyToID != reply.ID {
		t.Fatalf("nested reply must point at its parent")
	}
	if reply.RecipientRole != model.RoleAdmin {
		t.Fatalf("developer reply goes to admin")
	}

	thread, err := svc.Thread(ctx, root.ID)
	if err != nil {
		t.Fatalf("Thread failed: %v", err)
	}
	if len(thread) != 3 || thread[0].ID != root.ID {
		t.Fatalf("unexpected thread %+v", thread)
	}
	if _, err := svc.Thread(ctx, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown thread, got %v", err)
	}
}

func TestSendSucceedsWhenEnqueueFails(t *testing.T) {
	svc, db, queue, _ := newService(t)
	queue.enqueueErr = errors.New("nats down")
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, SendRequest{Body: "still stored", SenderID: "admin-1", SenderRole: model.RoleAdmin})
	if err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}
	logs, _ := db.NotificationLog().Pending(ctx, msg.ID, model.ChannelEmail)
	if len(logs) != 3 {
		t.Fatalf("pending logs must survive for the sweep, got %d", len(logs))
	}
}

func TestListMessagesClampsLimit(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 55; i++ {
		if _, err := svc.SendMessage(ctx, SendRequest{Body: "bulk", SenderID: "dev-1", SenderRole: model.RoleDeveloper}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for _, limit := range []int{0, 500} {
		msgs, err := svc.ListMessages(ctx, limit)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 50 {
			t.Fatalf("limit %d: expected 50, got %d", limit, len(msgs))
		}
	}
}

func TestMarkAsReadOnlyForRecipient(t *testing.T) {
	svc, _, _, broker := newService(t)
	ctx := context.Background()

	msg, _ := svc.SendMessage(ctx, SendRequest{Body: "please review", SenderID: "admin-1", SenderRole: model.RoleAdmin})
	events, cancel, _ := broker.Subscribe(ctx)
	defer cancel()

	got, err := svc.MarkAsRead(ctx, msg.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}
	if got.Status != model.MessageStatusSent {
		t.Fatalf("sender viewing must not mark read")
	}

	got, err = svc.MarkAsRead(ctx, msg.ID, model.RoleDeveloper)
	if err != nil {
		t.Fatalf("MarkAsRead failed: %v", err)
	}
	if got.Status != model.MessageStatusRead {
		t.Fatalf("expected read, got %s", got.Status)
	}
	select {
	case ev := <-events:
		if ev.Type != realtime.EventUpdate || ev.Old.Status != model.MessageStatusSent {
			t.Fatalf("unexpected change event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected UPDATE change event")
	}

	// 再次查看不再产生事件
	if _, err := svc.MarkAsRead(ctx, msg.ID, model.RoleDeveloper); err != nil {
		t.Fatalf("MarkAsRead again failed: %v", err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := svc.MarkAsRead(ctx, "missing", model.RoleDeveloper); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnalysisReview(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAnalysisService(db)
	ctx := context.Background()

	analysis := &model.AIAnalysis{MessageID: "m1", AnalysisType: model.AnalysisQuestion, ConfidenceScore: 0.8, ProcessedAt: time.Now()}
	if err := db.Analysis().Create(ctx, analysis); err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	latest, err := svc.Latest(ctx, "m1")
	if err != nil || latest.ID != analysis.ID {
		t.Fatalf("Latest: %v %+v", err, latest)
	}

	reviewed, err := svc.Review(ctx, analysis.ID, true, "  looks right ")
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if reviewed.DeveloperApproved == nil || !*reviewed.DeveloperApproved || reviewed.DeveloperNotes != "looks right" {
		t.Fatalf("unexpected review state %+v", reviewed)
	}

	if _, err := svc.Review(ctx, "missing", false, ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Latest(ctx, "m2"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
