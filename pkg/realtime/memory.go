package realtime

import (
	"context"
	"sync"
)

// MemoryBroker 进程内广播，单实例部署与测试使用
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan ChangeEvent
	buffer int
}

// NewMemoryBroker 创建进程内广播
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{
		subs:   make(map[int]chan ChangeEvent),
		buffer: buffer,
	}
}

// Publish 广播事件；订阅者缓冲区满时丢弃该订阅者的这条事件
func (b *MemoryBroker) Publish(ctx context.Context, event ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe 注册订阅者
func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan ChangeEvent, func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan ChangeEvent, b.buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
