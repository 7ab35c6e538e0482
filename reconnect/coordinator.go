package reconnect

import (
	"sync"
	"time"

	linklog "fleetlink/log"
	"fleetlink/status"
)

// Config 重连策略配置。
type Config struct {
	// InitialDelay 首次重连前的等待时间。
	InitialDelay time.Duration
	// MaxDelay 退避延迟上限。
	MaxDelay time.Duration
	// MaxRetries 最大重连次数，0 表示不设上限。
	MaxRetries int
	// Disabled 为 true 时断链即终态，不做任何重连。
	Disabled bool
}

// Callbacks 重连过程回调。
type Callbacks struct {
	// Attempt 执行一次重连（拨号 + 握手），返回 nil 表示链路恢复。
	Attempt func() error
	// OnRecovered 链路恢复后调用一次。
	OnRecovered func(retries int)
	// OnGiveUp 达到重试上限（或重连被禁用）后调用一次，此后协调器停在 Failed。
	OnGiveUp func(retries int)
}

// Coordinator 断链重连协调器：由外层驱动循环以 Tick(now) 推进，
// 每次失败后延迟翻倍、封顶于 MaxDelay。
// 约束：
// - Failed 为终态，仅 Reset 可离开
// - OnGiveUp 每轮断链至多触发一次
// - 回调在锁外执行
type Coordinator struct {
	cfg Config
	cb  Callbacks

	mu          sync.Mutex
	phase       status.ReconnectPhase
	delay       time.Duration
	nextAttempt time.Time
	retries     int
}

// NewCoordinator 创建处于 Idle 的协调器。
// 参数：
// - cfg: 退避策略
// - cb: 重连执行与结果回调
func NewCoordinator(cfg Config, cb Callbacks) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		cb:    cb,
		phase: status.ReconnectIdle,
		delay: cfg.InitialDelay,
	}
}

// Trigger 在检测到断链时调用，安排首次重连。
// 规则：
// - 已在 Reconnecting/Failed 时为空操作
// - 重连被禁用时直接进入 Failed 并触发一次 OnGiveUp
// 参数：
// - now: 当前时刻
func (c *Coordinator) Trigger(now time.Time) {
	c.mu.Lock()
	if c.phase != status.ReconnectIdle {
		c.mu.Unlock()
		return
	}
	if c.cfg.Disabled {
		c.phase = status.ReconnectFailed
		c.mu.Unlock()
		linklog.L().Warn("链路断开且重连被禁用，会话进入终态")
		if c.cb.OnGiveUp != nil {
			c.cb.OnGiveUp(0)
		}
		return
	}
	c.phase = status.ReconnectRunning
	c.delay = c.cfg.InitialDelay
	c.retries = 0
	c.nextAttempt = now.Add(c.cfg.InitialDelay)
	c.mu.Unlock()
	linklog.With(map[string]any{"delay": c.cfg.InitialDelay.String()}).
		Info("链路断开，已安排重连")
}

// Tick 推进协调器：到达计划时刻则执行一次重连尝试。
// 参数：
// - now: 当前时刻（由调用方注入，便于测试）
// 返回：
// - bool: 本次是否执行了重连尝试
func (c *Coordinator) Tick(now time.Time) bool {
	c.mu.Lock()
	if c.phase != status.ReconnectRunning || now.Before(c.nextAttempt) {
		c.mu.Unlock()
		return false
	}
	attempt := c.cb.Attempt
	c.mu.Unlock()

	var err error
	if attempt != nil {
		err = attempt()
	}

	c.mu.Lock()
	if c.phase != status.ReconnectRunning {
		// Reset/Trigger 竞争：结果已无意义
		c.mu.Unlock()
		return true
	}
	if err == nil {
		retries := c.retries
		c.phase = status.ReconnectIdle
		c.delay = c.cfg.InitialDelay
		c.retries = 0
		c.mu.Unlock()
		linklog.With(map[string]any{"retries": retries}).Info("链路已恢复")
		if c.cb.OnRecovered != nil {
			c.cb.OnRecovered(retries)
		}
		return true
	}

	c.retries++
	retries := c.retries
	if c.cfg.MaxRetries > 0 && c.retries >= c.cfg.MaxRetries {
		c.phase = status.ReconnectFailed
		c.mu.Unlock()
		linklog.With(map[string]any{"retries": retries}).WithError(err).
			Error("重连次数耗尽，放弃该链路")
		if c.cb.OnGiveUp != nil {
			c.cb.OnGiveUp(retries)
		}
		return true
	}
	c.delay *= 2
	if c.delay > c.cfg.MaxDelay {
		c.delay = c.cfg.MaxDelay
	}
	c.nextAttempt = now.Add(c.delay)
	delay := c.delay
	c.mu.Unlock()
	linklog.With(map[string]any{"retries": retries, "next_delay": delay.String()}).
		WithError(err).Warn("重连失败，退避后重试")
	return true
}

// Reset 强制回到 Idle 并清零计数（人工干预或会话重启后使用）。
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.phase = status.ReconnectIdle
	c.delay = c.cfg.InitialDelay
	c.retries = 0
	c.nextAttempt = time.Time{}
	c.mu.Unlock()
}

// Phase 返回当前阶段（无副作用）。
func (c *Coordinator) Phase() status.ReconnectPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// IsReconnecting 返回是否正处于重连过程中。
func (c *Coordinator) IsReconnecting() bool {
	return c.Phase() == status.ReconnectRunning
}

// RetryCount 返回本轮断链以来已失败的重连次数。
func (c *Coordinator) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// NextAttempt 返回下一次计划重连时刻（仅 Reconnecting 阶段有意义）。
func (c *Coordinator) NextAttempt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextAttempt
}
