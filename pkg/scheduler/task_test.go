package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"CredentialDesk/pkg/database/dbtest"
	"CredentialDesk/pkg/model"
)

type recordingQueue struct {
	failFor string
	jobs    map[string]string
}

func (q *recordingQueue) EnqueueNotification(ctx context.Context, messageID, source string) error {
	if messageID == q.failFor {
		return errors.New("nats down")
	}
	q.jobs[messageID] = source
	return nil
}

func TestSweepStaleOnlyPending(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	logs := []*model.NotificationLog{
		{MessageID: "m-stale", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationPending, CreatedAt: old},
		{MessageID: "m-stale", UserID: "u2", NotificationType: model.ChannelEmail, Status: model.NotificationPending, CreatedAt: old},
		{MessageID: "m-failed", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationFailed, CreatedAt: old},
		{MessageID: "m-fresh", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationPending},
		{MessageID: "m-broken", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationPending, CreatedAt: old},
	}
	if err := db.NotificationLog().CreateBatch(ctx, logs); err != nil {
		t.Fatalf("seed logs: %v", err)
	}

	queue := &recordingQueue{failFor: "m-broken", jobs: map[string]string{}}
	s := NewScheduler(db.NotificationLog(), queue, "@every 5m", 15*time.Minute)

	n, err := s.SweepStale(ctx)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if n != 1 || len(queue.jobs) != 1 || queue.jobs["m-stale"] != SweepSource {
		t.Fatalf("expected only m-stale to be re-enqueued, got %d %v", n, queue.jobs)
	}

	// 入队失败的消息下一轮还能补发
	queue.failFor = ""
	n, err = s.SweepStale(ctx)
	if err != nil {
		t.Fatalf("second SweepStale failed: %v", err)
	}
	if n != 1 || queue.jobs["m-broken"] != SweepSource {
		t.Fatalf("expected m-broken on retry tick, got %d %v", n, queue.jobs)
	}
}

func TestSweepStaleSkipsAttemptedAndSweepsOnce(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	attempted := old.Add(time.Minute)

	logs := []*model.NotificationLog{
		{MessageID: "m-lost", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationPending, CreatedAt: old},
		{MessageID: "m-attempted", UserID: "u1", NotificationType: model.ChannelEmail, Status: model.NotificationPending, CreatedAt: old, AttemptedAt: &attempted},
	}
	if err := db.NotificationLog().CreateBatch(ctx, logs); err != nil {
		t.Fatalf("seed logs: %v", err)
	}

	queue := &recordingQueue{jobs: map[string]string{}}
	s := NewScheduler(db.NotificationLog(), queue, "@every 5m", 15*time.Minute)

	n, err := s.SweepStale(ctx)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if n != 1 || queue.jobs["m-lost"] != SweepSource {
		t.Fatalf("expected only m-lost, got %d %v", n, queue.jobs)
	}

	// 分发器仍未处理时，下一轮不会再次补发
	delete(queue.jobs, "m-lost")
	n, err = s.SweepStale(ctx)
	if err != nil {
		t.Fatalf("second SweepStale failed: %v", err)
	}
	if n != 0 || len(queue.jobs) != 0 {
		t.Fatalf("expected no re-enqueue on second tick, got %d %v", n, queue.jobs)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, nil, "every now and then", time.Minute)
	if err := s.Start(); err == nil {
		t.Fatalf("expected invalid cron spec error")
	}
}
