package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"oip/fsbot/internal/model"
	"oip/fsbot/pkg/errorutil"
)

// DeadLetter 死信记录
type DeadLetter struct {
	Message *model.QueuedMessage
	Error   *errorutil.ErrorRecord
}

type memoryEntry struct {
	jobID      string
	msg        *model.QueuedMessage
	visibleAt  time.Time
	deliveries int
}

// Memory 进程内队列（本地开发与测试使用）
type Memory struct {
	mu         sync.Mutex
	visibility time.Duration
	ready      []*memoryEntry
	pending    map[string]*memoryEntry // job_id → entry
	inflight   *inflight[string]
	dead       []DeadLetter
	acked      int

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewMemory 创建进程内队列，visibility 为可见性窗口
func NewMemory(visibility time.Duration) *Memory {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Memory{
		visibility: visibility,
		pending:    make(map[string]*memoryEntry),
		inflight:   newInflight[string](),
	}
}

// Enqueue 入队（复制消息，避免与调用方共享）
func (m *Memory) Enqueue(_ context.Context, msg *model.QueuedMessage) error {
	cp := *msg
	cp.Mentions = append([]string(nil), msg.Mentions...)

	m.mu.Lock()
	m.ready = append(m.ready, &memoryEntry{jobID: uuid.New().String(), msg: &cp})
	m.mu.Unlock()
	return nil
}

// DequeueBatch 非阻塞拉取，超过可见性窗口未确认的消息会回到队首
func (m *Memory) DequeueBatch(_ context.Context, max int) ([]*model.QueuedMessage, error) {
	if max <= 0 {
		max = 1
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*memoryEntry
	for id, e := range m.pending {
		if !now.Before(e.visibleAt) {
			expired = append(expired, e)
			delete(m.pending, id)
			jobID := e.jobID
			m.inflight.drop(e.msg.MessageID, func(v string) bool { return v == jobID })
		}
	}
	m.ready = append(expired, m.ready...)

	n := max
	if n > len(m.ready) {
		n = len(m.ready)
	}
	batch := m.ready[:n]
	m.ready = m.ready[n:]

	out := make([]*model.QueuedMessage, 0, n)
	for _, e := range batch {
		e.deliveries++
		e.visibleAt = now.Add(m.visibility)
		m.pending[e.jobID] = e
		m.inflight.put(e.msg.MessageID, e.jobID)
		cp := *e.msg
		out = append(out, &cp)
	}
	return out, nil
}

// Ack 确认并删除消息
func (m *Memory) Ack(_ context.Context, messageID string) error {
	jobID, ok := m.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	m.mu.Lock()
	delete(m.pending, jobID)
	m.acked++
	m.mu.Unlock()
	return nil
}

// Nack 立即重新可见
func (m *Memory) Nack(_ context.Context, messageID string) error {
	jobID, ok := m.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	m.mu.Lock()
	if e, ok := m.pending[jobID]; ok {
		delete(m.pending, jobID)
		m.ready = append(m.ready, e)
	}
	m.mu.Unlock()
	return nil
}

// DeadLetter 移入死信
func (m *Memory) DeadLetter(_ context.Context, messageID string, rec *errorutil.ErrorRecord) error {
	jobID, ok := m.inflight.take(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	m.mu.Lock()
	if e, ok := m.pending[jobID]; ok {
		delete(m.pending, jobID)
		m.dead = append(m.dead, DeadLetter{Message: e.msg, Error: rec})
	}
	m.mu.Unlock()
	return nil
}

// Stats 队列计数（ready, pending, acked, dead）
func (m *Memory) Stats() (ready, pending, acked, dead int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready), len(m.pending), m.acked, len(m.dead)
}

// DeadLetters 死信副本
func (m *Memory) DeadLetters() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.dead...)
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

var _ Queue = (*Memory)(nil)
