package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
)

// SweepSource 补发任务的来源标记
const SweepSource = "sweep"

// StaleFinder 认领从未被分发器处理过的过期通知
type StaleFinder interface {
	ClaimStale(ctx context.Context, olderThan, at time.Time) ([]string, error)
	ReleaseSwept(ctx context.Context, messageID string) error
}

// Enqueuer 通知任务投递
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, messageID, source string) error
}

// Scheduler 任务调度器
type Scheduler struct {
	cron      *cron.Cron
	finder    StaleFinder
	queue     Enqueuer
	spec      string
	threshold time.Duration
	now       func() time.Time
}

// NewScheduler 创建任务调度器
func NewScheduler(finder StaleFinder, queue Enqueuer, spec string, threshold time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		finder:    finder,
		queue:     queue,
		spec:      spec,
		threshold: threshold,
		now:       time.Now,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	// 定期补发丢失的通知任务
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.SweepStale(context.Background()); err != nil {
			logx.Errorf("补发通知任务失败: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("注册补发任务失败: %w", err)
	}

	s.cron.Start()
	logx.Infof("调度器已启动, 补发周期 %s, 过期阈值 %s", s.spec, s.threshold)
	return nil
}

// Stop 停止调度器并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SweepStale 为入队丢失的通知重新投递任务。
// 只选中从未被认领的 pending 记录，且每条只补发一次，投递过的记录不会被重试。
func (s *Scheduler) SweepStale(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.finder.ClaimStale(ctx, now.Add(-s.threshold), now)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, id := range ids {
		if err := s.queue.EnqueueNotification(ctx, id, SweepSource); err != nil {
			logx.WithContext(ctx).Errorf("消息 %s 补发入队失败: %v", id, err)
			if err := s.finder.ReleaseSwept(ctx, id); err != nil {
				logx.WithContext(ctx).Errorf("消息 %s 撤销补发标记失败: %v", id, err)
			}
			continue
		}
		enqueued++
	}
	if len(ids) > 0 {
		logx.WithContext(ctx).Infof("补发通知任务 %d/%d", enqueued, len(ids))
	}
	return enqueued, nil
}
