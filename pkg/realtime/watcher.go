package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"

	"CredentialDesk/pkg/model"
)

// RefreshLimit 每次变更后重新拉取的消息条数
const RefreshLimit = 50

// MessageLister 拉取最新消息列表
type MessageLister interface {
	ListMessages(ctx context.Context, limit int) ([]*model.Message, error)
}

// WatcherOptions 回调配置
type WatcherOptions struct {
	ViewerRole model.Role
	// OnRefresh 每次变更后拿到完整的最新列表
	OnRefresh func(messages []*model.Message)
	// OnIncoming 对方发来新消息时触发的提示
	OnIncoming func(message model.Message)
	// OnError 重新拉取失败
	OnError func(err error)
}

// Watcher 客户端订阅：任何变更都重新拉取整个列表，不做增量合并
type Watcher struct {
	broker Broker
	lister MessageLister
	opts   WatcherOptions

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewWatcher 创建 Watcher
func NewWatcher(broker Broker, lister MessageLister, opts WatcherOptions) *Watcher {
	return &Watcher{broker: broker, lister: lister, opts: opts}
}

// Start 订阅变更，对应页面挂载。连接中断后不会自动重连。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("watcher 已启动")
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	events, unsubscribe, err := w.broker.Subscribe(ctx)
	if err != nil {
		cancelCtx()
		return err
	}

	done := make(chan struct{})
	w.done = done
	w.cancel = func() {
		unsubscribe()
		cancelCtx()
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				w.handle(ctx, event)
			}
		}
	}()
	return nil
}

// Stop 取消订阅，对应页面卸载
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) handle(ctx context.Context, event ChangeEvent) {
	if event.Table != "" && event.Table != TableMessages {
		return
	}

	messages, err := w.lister.ListMessages(ctx, RefreshLimit)
	if err != nil {
		logx.WithContext(ctx).Errorf("变更后重新拉取消息失败: %v", err)
		if w.opts.OnError != nil {
			w.opts.OnError(err)
		}
	} else if w.opts.OnRefresh != nil {
		w.opts.OnRefresh(messages)
	}

	if event.Type == EventInsert && event.New != nil && event.New.SenderRole != w.opts.ViewerRole {
		if w.opts.OnIncoming != nil {
			w.opts.OnIncoming(*event.New)
		}
	}
}
