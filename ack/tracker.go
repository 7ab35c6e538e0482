package ack

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
)

// RetryFunc 在待确认条目超时且仍有重试额度时调用，负责重发原始消息。
type RetryFunc func(messageID string, attempt int)

// TimeoutFunc 在待确认条目耗尽重试额度后调用一次，条目随即被移除。
type TimeoutFunc func(messageID string, attempts int)

// pendingEntry 一条等待确认的投递记录。仅在 Tracker 锁内读写。
type pendingEntry struct {
	id         string
	timeout    time.Duration
	deadline   time.Time
	retries    int
	maxRetries int
	onRetry    RetryFunc
}

// Tracker 至少一次投递确认器：登记待确认消息，超时驱动重试，
// 确认或耗尽重试额度后移除。
// 约束：
// - 所有状态由单一互斥锁保护，Acknowledge 与 Update 可并发调用
// - 回调在锁外执行，回调内可安全地再次调用 Tracker 方法
type Tracker struct {
	mu        sync.Mutex
	pending   map[string]*pendingEntry
	onTimeout TimeoutFunc
	timeouts  int64
}

// NewTracker 创建确认器。
// 参数：
// - onTimeout: 条目耗尽重试额度后的终态回调（可为 nil）
func NewTracker(onTimeout TimeoutFunc) *Tracker {
	return &Tracker{
		pending:   make(map[string]*pendingEntry),
		onTimeout: onTimeout,
	}
}

// Register 登记一条待确认消息。
// 参数：
// - messageID: 关联标识（为空时自动生成）
// - timeout: 单次等待确认的时长
// - maxRetries: 最大重试次数（0 表示超时即终态、不重试）
// - onRetry: 超时重发回调
// 返回：
// - string: 实际使用的关联标识
func (t *Tracker) Register(messageID string, timeout time.Duration, maxRetries int, onRetry RetryFunc) string {
	if messageID == "" {
		messageID = newID()
	}
	t.mu.Lock()
	t.pending[messageID] = &pendingEntry{
		id:         messageID,
		timeout:    timeout,
		deadline:   time.Now().Add(timeout),
		maxRetries: maxRetries,
		onRetry:    onRetry,
	}
	t.mu.Unlock()
	return messageID
}

// Acknowledge 确认一条消息并移除其待确认记录。
// 规则：
// - 未知或已确认的标识直接忽略（重复确认不是错误）
// 返回：
// - bool: 是否存在并移除了对应记录
func (t *Tracker) Acknowledge(messageID string) bool {
	t.mu.Lock()
	_, ok := t.pending[messageID]
	if ok {
		delete(t.pending, messageID)
	}
	t.mu.Unlock()
	return ok
}

// Update 由外层驱动循环周期性调用，推进所有到期条目：
// 仍有重试额度的条目重置截止时间并触发重发回调，
// 耗尽额度的条目被移除并触发终态回调。
// 参数：
// - now: 当前时刻（由调用方注入，便于测试）
// 返回：
// - []string: 本次判定为超时终态的关联标识
func (t *Tracker) Update(now time.Time) []string {
	type retryCall struct {
		id      string
		attempt int
		fn      RetryFunc
	}
	var (
		retries  []retryCall
		expired  []string
		attempts []int
	)

	t.mu.Lock()
	for id, e := range t.pending {
		if now.Before(e.deadline) {
			continue
		}
		if e.retries < e.maxRetries {
			e.retries++
			e.deadline = now.Add(e.timeout)
			retries = append(retries, retryCall{id: id, attempt: e.retries, fn: e.onRetry})
			continue
		}
		delete(t.pending, id)
		t.timeouts++
		expired = append(expired, id)
		attempts = append(attempts, e.retries)
	}
	t.mu.Unlock()

	for _, r := range retries {
		linklog.With(map[string]any{"request_id": r.id, "attempt": r.attempt}).
			WithError(linkerrors.New(linkerrors.CodeMessageTimeout, "ack deadline elapsed")).
			Warn("消息确认超时，触发重发")
		if r.fn != nil {
			r.fn(r.id, r.attempt)
		}
	}
	for i, id := range expired {
		linklog.With(map[string]any{"request_id": id, "attempts": attempts[i]}).
			WithError(linkerrors.New(linkerrors.CodeMaxRetries, "delivery gave up")).
			Error("消息确认失败，放弃投递")
		if t.onTimeout != nil {
			t.onTimeout(id, attempts[i])
		}
	}
	return expired
}

// PendingCount 返回当前等待确认的条目数。
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// TimeoutCount 返回累计判定为终态超时的条目数。
func (t *Tracker) TimeoutCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeouts
}

// Clear 丢弃全部待确认记录（会话销毁时使用，不触发任何回调）。
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.pending = make(map[string]*pendingEntry)
	t.mu.Unlock()
}

// newID 生成用于消息关联的随机 ID。
func newID() string {
	const letters = "0123456789abcdef"
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		now := time.Now().UnixNano()
		return fmt.Sprintf("m%x", now)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
