package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleetlink/config"
	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
)

// vehicleEntry 注册表条目：会话实例与运行标记。
type vehicleEntry struct {
	session *VehicleSession
	running bool
}

// Supervisor 机队监督器：持有按载具标识索引的会话集合。
// 约束：
// - 载具标识在同一监督器内唯一
// - 各会话完全隔离，单机故障不影响其他载具
// - Health/List 等读取接口不阻塞在任何网络操作上
type Supervisor struct {
	acfg     config.AgentConfig
	handlers Handlers

	mu       sync.RWMutex
	vehicles map[string]*vehicleEntry
}

// NewSupervisor 创建空的机队监督器。
// 参数：
// - acfg: 节点级配置（超时与驱动间隔）
// - handlers: 所有载具共用的下行处理器
func NewSupervisor(acfg config.AgentConfig, handlers Handlers) *Supervisor {
	return &Supervisor{
		acfg:     acfg,
		handlers: handlers,
		vehicles: make(map[string]*vehicleEntry),
	}
}

// Add 注册一个新载具（不启动）。
// 参数：
// - vcfg: 载具配置
// 返回：
// - error: DuplicateVehicle（标识已存在，不改动现有状态）或端点解析失败
func (s *Supervisor) Add(vcfg config.VehicleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[vcfg.VehicleID]; ok {
		return linkerrors.New(linkerrors.CodeDuplicateVehicle,
			"vehicle already registered: "+vcfg.VehicleID)
	}
	sess, err := NewVehicleSession(vcfg, s.acfg, s.handlers, s.onVehicleTerminal)
	if err != nil {
		return err
	}
	s.vehicles[vcfg.VehicleID] = &vehicleEntry{session: sess}
	linklog.ForVehicle(vcfg.VehicleID).
		WithField("center", vcfg.Center).Info("载具已注册")
	return nil
}

// Remove 注销载具；若在运行则先停止。
// 参数：
// - vehicleID: 载具标识
// 返回：
// - error: VehicleNotFound
func (s *Supervisor) Remove(vehicleID string) error {
	s.mu.Lock()
	e, ok := s.vehicles[vehicleID]
	if !ok {
		s.mu.Unlock()
		return linkerrors.New(linkerrors.CodeVehicleNotFound,
			"vehicle not found: "+vehicleID)
	}
	delete(s.vehicles, vehicleID)
	running := e.running
	s.mu.Unlock()

	if running {
		e.session.Stop()
	}
	linklog.ForVehicle(vehicleID).Info("载具已注销")
	return nil
}

// StartVehicle 启动单个载具会话。
// 规则：
// - 已在运行时为空操作
// - 首连失败仍视为已启动（重连协调器接管），错误原样返回供上层记录
func (s *Supervisor) StartVehicle(ctx context.Context, vehicleID string) error {
	s.mu.Lock()
	e, ok := s.vehicles[vehicleID]
	if !ok {
		s.mu.Unlock()
		return linkerrors.New(linkerrors.CodeVehicleNotFound,
			"vehicle not found: "+vehicleID)
	}
	if e.running {
		s.mu.Unlock()
		return nil
	}
	e.running = true
	s.mu.Unlock()

	return e.session.Start(ctx)
}

// StopVehicle 停止单个载具会话（等待其接收 goroutine 退出）。
func (s *Supervisor) StopVehicle(vehicleID string) error {
	s.mu.Lock()
	e, ok := s.vehicles[vehicleID]
	if !ok {
		s.mu.Unlock()
		return linkerrors.New(linkerrors.CodeVehicleNotFound,
			"vehicle not found: "+vehicleID)
	}
	if !e.running {
		s.mu.Unlock()
		return nil
	}
	e.running = false
	s.mu.Unlock()

	e.session.Stop()
	return nil
}

// StartAll 尽力启动全部载具：单机失败不阻止其他载具启动。
// 返回：
// - map[string]error: 每个载具的启动结果（nil 表示成功）
func (s *Supervisor) StartAll(ctx context.Context) map[string]error {
	outcomes := make(map[string]error)
	for _, id := range s.List() {
		outcomes[id] = s.StartVehicle(ctx, id)
	}
	return outcomes
}

// StopAll 停止全部载具并等待所有接收 goroutine 退出。
func (s *Supervisor) StopAll() {
	for _, id := range s.List() {
		_ = s.StopVehicle(id)
	}
}

// List 返回已注册的载具标识（升序）。
func (s *Supervisor) List() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.vehicles))
	for id := range s.vehicles {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsRunning 返回载具是否处于运行状态（未注册返回 false）。
func (s *Supervisor) IsRunning(vehicleID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vehicles[vehicleID]
	return ok && e.running
}

// Session 返回载具会话（供外部数据源上行遥测）。
func (s *Supervisor) Session(vehicleID string) (*VehicleSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.vehicles[vehicleID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Health 返回全部载具的健康快照（无阻塞）。
func (s *Supervisor) Health() map[string]VehicleHealth {
	s.mu.RLock()
	sessions := make([]*VehicleSession, 0, len(s.vehicles))
	for _, e := range s.vehicles {
		sessions = append(sessions, e.session)
	}
	s.mu.RUnlock()

	out := make(map[string]VehicleHealth, len(sessions))
	for _, sess := range sessions {
		h := sess.Health()
		out[h.VehicleID] = h
	}
	return out
}

// Run 驱动循环：按配置间隔推进所有运行中会话的周期性工作，
// 直到上下文取消。取消后停止全部载具再返回。
// 参数：
// - ctx: 上下文
func (s *Supervisor) Run(ctx context.Context) {
	interval := s.acfg.TickInterval.Std()
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopAll()
			return
		case now := <-ticker.C:
			s.tickAll(now)
		}
	}
}

// tickAll 推进一轮全部运行中会话（快照后在锁外执行）。
func (s *Supervisor) tickAll(now time.Time) {
	s.mu.RLock()
	sessions := make([]*VehicleSession, 0, len(s.vehicles))
	for _, e := range s.vehicles {
		if e.running {
			sessions = append(sessions, e.session)
		}
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.Tick(now)
	}
}

// onVehicleTerminal 某载具重连放弃后的通知（仅记录，是否注销由运维决定）。
func (s *Supervisor) onVehicleTerminal(vehicleID string, retries int) {
	linklog.ForVehicle(vehicleID).
		WithField("retries", retries).Error("载具链路进入终态断开")
}
