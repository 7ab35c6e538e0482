package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fleetlink/ack"
	"fleetlink/config"
	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
	"fleetlink/protocol"
	"fleetlink/reconnect"
	"fleetlink/status"
	"fleetlink/transport"
)

// Version 节点代理版本号，随 hello 帧上报给地面中心。
var Version = "0.9.0"

// VehicleHealth 单载具健康快照（读取无阻塞）。
type VehicleHealth struct {
	VehicleID   string                `json:"vehicle_id"`
	Agent       status.AgentStatus    `json:"agent"`
	Link        status.LinkState      `json:"link"`
	Reconnect   status.ReconnectPhase `json:"reconnect"`
	RetryCount  int                   `json:"retry_count"`
	PendingAcks int                   `json:"pending_acks"`
	Counters    protocol.Counters     `json:"counters"`
}

// VehicleSession 单载具的连接单元：一条传输会话之上组合上行通道、
// 下行通道、确认跟踪器与重连协调器。
// 约束：
// - 各载具会话完全隔离，互不共享任何资源
// - Stop 会等待接收 goroutine 完全退出
// - Tick 由外层驱动循环调用，单趟推进、不阻塞
type VehicleSession struct {
	cfg      config.VehicleConfig
	endpoint config.Endpoint

	session *transport.Session
	tracker *ack.Tracker
	coord   *reconnect.Coordinator
	up      *uplink
	down    *downlink
	ctrs    counters
	sampler *sysSampler

	mu           sync.Mutex
	agentStatus  status.AgentStatus
	startedAt    time.Time
	lastStatusAt time.Time

	// stopped 置位后任何在途重连尝试都会放弃或回收刚建立的连接
	stopped atomic.Bool

	// onTerminal 重连放弃后通知属主（至多一轮一次），可为 nil。
	onTerminal func(vehicleID string, retries int)
}

// NewVehicleSession 构造一个未启动的载具会话。
// 参数：
// - vcfg: 载具链路配置（已补齐默认值）
// - acfg: 节点级超时配置
// - handlers: 下行指令/任务处理器
// - onTerminal: 重连放弃回调（可为 nil）
// 返回：
// - *VehicleSession: 会话实例
// - error: 端点解析失败原因
func NewVehicleSession(vcfg config.VehicleConfig, acfg config.AgentConfig,
	handlers Handlers, onTerminal func(vehicleID string, retries int)) (*VehicleSession, error) {
	ep, err := config.ParseEndpoint(vcfg.Center)
	if err != nil {
		return nil, err
	}

	v := &VehicleSession{
		cfg:         vcfg,
		endpoint:    ep,
		sampler:     newSysSampler(),
		agentStatus: status.AgentCreated,
		onTerminal:  onTerminal,
	}
	v.tracker = ack.NewTracker(func(id string, attempts int) {
		v.ctrs.ackTimeouts.Add(1)
	})
	v.session = transport.NewSession(
		transport.Config{
			Endpoint:    ep,
			DialTimeout: acfg.DialTimeout.Std(),
			SendTimeout: acfg.SendTimeout.Std(),
		},
		transport.Handlers{
			OnFrame:      func(f protocol.Frame) { v.down.handleFrame(f) },
			OnDisconnect: v.onDisconnect,
			OnParseError: func(err error) { v.ctrs.parseErrors.Add(1) },
		},
	)
	v.up = newUplink(vcfg.VehicleID, v.session, &v.ctrs)
	v.down = newDownlink(vcfg.VehicleID, v.session, v.tracker, handlers, &v.ctrs,
		vcfg.AckTimeout.Std(), vcfg.AckRetries())
	v.coord = reconnect.NewCoordinator(
		reconnect.Config{
			InitialDelay: vcfg.ReconnectInitialDelay.Std(),
			MaxDelay:     vcfg.ReconnectMaxDelay.Std(),
			MaxRetries:   vcfg.ReconnectMaxRetries,
			Disabled:     vcfg.DisableReconnect,
		},
		reconnect.Callbacks{
			Attempt:     v.redial,
			OnRecovered: v.onRecovered,
			OnGiveUp:    v.onGiveUp,
		},
	)
	return v, nil
}

// Start 建立到地面中心的连接并发送 hello 帧。
// 规则：
// - 首连失败返回错误，但同时安排重连（除非重连被禁用），会话仍算已启动
// 参数：
// - ctx: 上下文（可取消拨号）
func (v *VehicleSession) Start(ctx context.Context) error {
	v.stopped.Store(false)
	v.mu.Lock()
	v.agentStatus = status.AgentRunning
	v.startedAt = time.Now()
	v.lastStatusAt = time.Time{}
	v.mu.Unlock()
	v.coord.Reset()

	if err := v.session.Connect(ctx); err != nil {
		linklog.ForVehicle(v.cfg.VehicleID).
			WithField("endpoint", v.endpoint.String()).
			WithError(err).Warn("首次连接失败")
		v.coord.Trigger(time.Now())
		return err
	}
	v.afterConnect()
	return nil
}

// Stop 停止会话：断开连接、等待接收 goroutine 退出、丢弃未决确认。
// 置位 stopped 须先于关闭连接，在途重连尝试据此放弃或回收新连接。
func (v *VehicleSession) Stop() {
	v.stopped.Store(true)
	v.mu.Lock()
	v.agentStatus = status.AgentStopped
	v.mu.Unlock()

	v.session.Close()
	v.coord.Reset()
	v.tracker.Clear()
	linklog.ForVehicle(v.cfg.VehicleID).Info("会话已停止")
}

// Tick 推进会话的周期性工作：确认超时重试、重连尝试与状态事件上报。
// 参数：
// - now: 当前时刻（由驱动循环注入）
func (v *VehicleSession) Tick(now time.Time) {
	v.tracker.Update(now)
	v.coord.Tick(now)
	v.maybePublishStatus(now)
}

// Publish 上行一条遥测（发射后不管）。
func (v *VehicleSession) Publish(tm protocol.Telemetry) error {
	return v.up.Publish(tm)
}

// Health 返回当前健康快照（无阻塞）。
func (v *VehicleSession) Health() VehicleHealth {
	v.mu.Lock()
	agent := v.agentStatus
	v.mu.Unlock()
	return VehicleHealth{
		VehicleID:   v.cfg.VehicleID,
		Agent:       agent,
		Link:        v.session.State(),
		Reconnect:   v.coord.Phase(),
		RetryCount:  v.coord.RetryCount(),
		PendingAcks: v.tracker.PendingCount(),
		Counters:    v.ctrs.snapshot(),
	}
}

// VehicleID 返回载具标识。
func (v *VehicleSession) VehicleID() string { return v.cfg.VehicleID }

// afterConnect 连接建立后的收尾：发送 hello 并记录日志。
func (v *VehicleSession) afterConnect() {
	if err := v.up.sendHello(Version); err != nil {
		linklog.ForVehicle(v.cfg.VehicleID).WithError(err).Warn("hello 帧发送失败")
	}
	linklog.ForVehicle(v.cfg.VehicleID).
		WithField("endpoint", v.endpoint.String()).Info("已连接到地面中心")
}

// onDisconnect 接收循环上报断链后安排重连。
func (v *VehicleSession) onDisconnect(cause error) {
	entry := linklog.ForVehicle(v.cfg.VehicleID)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Warn("链路断开")
	v.coord.Trigger(time.Now())
}

// redial 重连协调器的单次尝试：重新拨号并发送 hello。
// 规则：
// - 会话已停止时不拨号；拨号成功后再次发现已停止则立即回收该连接，
//   保证 Stop 之后不会复活链路或接收 goroutine
func (v *VehicleSession) redial() error {
	if v.stopped.Load() {
		return linkerrors.New(linkerrors.CodeConnectionFailed, "session stopped")
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.session.DialTimeout())
	defer cancel()
	if err := v.session.Connect(ctx); err != nil {
		return err
	}
	if v.stopped.Load() {
		v.session.Close()
		return linkerrors.New(linkerrors.CodeConnectionFailed, "session stopped")
	}
	v.afterConnect()
	return nil
}

func (v *VehicleSession) onRecovered(retries int) {
	linklog.ForVehicle(v.cfg.VehicleID).
		WithField("retries", retries).Info("链路重连成功")
}

func (v *VehicleSession) onGiveUp(retries int) {
	linklog.ForVehicle(v.cfg.VehicleID).
		WithField("retries", retries).Error("重连放弃，会话保持断开")
	if v.onTerminal != nil {
		v.onTerminal(v.cfg.VehicleID, retries)
	}
}

// maybePublishStatus 按配置间隔上行一条状态事件（链路不可用时跳过本轮）。
func (v *VehicleSession) maybePublishStatus(now time.Time) {
	interval := v.cfg.StatusInterval.Std()
	if interval <= 0 {
		return
	}
	v.mu.Lock()
	if !v.lastStatusAt.IsZero() && now.Sub(v.lastStatusAt) < interval {
		v.mu.Unlock()
		return
	}
	v.lastStatusAt = now
	agent := v.agentStatus
	started := v.startedAt
	v.mu.Unlock()

	if v.session.State() != status.LinkConnected {
		return
	}
	payload := protocol.StatusEventPayload{
		Agent:       agent,
		Link:        v.session.State(),
		Reconnect:   v.coord.Phase(),
		RetryCount:  v.coord.RetryCount(),
		PendingAcks: v.tracker.PendingCount(),
		CPUPercent:  v.sampler.CPUPercent(),
		MemMB:       v.sampler.MemMB(),
		Counters:    v.ctrs.snapshot(),
		UptimeMs:    now.Sub(started).Milliseconds(),
	}
	if err := v.up.PublishEvent(payload); err != nil {
		linklog.ForVehicle(v.cfg.VehicleID).WithError(err).Debug("状态事件上报失败")
	}
}
