package protocol

import (
	"encoding/json"

	"fleetlink/status"
)

type FrameKind string

const (
	KindHello     FrameKind = "hello"
	KindTelemetry FrameKind = "telemetry"
	KindCommand   FrameKind = "command"
	KindMission   FrameKind = "mission"
	KindResponse  FrameKind = "response"
	KindAck       FrameKind = "ack"
	KindEvent     FrameKind = "event"
)

// Frame 是链路上的一条完整应用消息（按行分隔的 JSON 信封）。
// 字段：
// - Kind: 消息类别（hello/telemetry/command/mission/response/ack/event）
// - VehicleID: 载具标识
// - RequestID: 关联标识（command/mission/response/ack 携带，用于确认闭环）
// - Payload: 类别相关的载荷（解析后不再修改）
type Frame struct {
	Kind      FrameKind       `json:"type"`
	VehicleID string          `json:"vehicle_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type HelloPayload struct {
	Version string `json:"version,omitempty"`
}

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type Velocity struct {
	Vx float64 `json:"vx"`
	Vy float64 `json:"vy"`
	Vz float64 `json:"vz"`
}

type Battery struct {
	Percent   float64 `json:"percent"`
	VoltageMv int     `json:"voltage_mv"`
}

type GPS struct {
	FixType int `json:"fix_type"`
	NumSat  int `json:"num_sat"`
}

// Telemetry 上行遥测载荷（字段集合与地面中心约定一致，序列化必须无损往返）。
type Telemetry struct {
	UavID       string   `json:"uav_id"`
	TimestampNs int64    `json:"timestamp_ns"`
	Position    Position `json:"position"`
	Attitude    Attitude `json:"attitude"`
	Velocity    Velocity `json:"velocity"`
	Battery     Battery  `json:"battery"`
	GPS         GPS      `json:"gps"`
	LinkQuality float64  `json:"link_quality"`
	FlightMode  string   `json:"flight_mode"`
}

type CommandPayload struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type MissionPayload struct {
	MissionID string          `json:"mission_id"`
	Items     json.RawMessage `json:"items,omitempty"`
}

// ResponsePayload 下行消息的执行回执（需要至少一次送达，由确认跟踪器保障）。
type ResponsePayload struct {
	Of     FrameKind `json:"of"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

type Counters struct {
	SendFailures  int64 `json:"send_failures"`
	ParseErrors   int64 `json:"parse_errors"`
	UnknownFrames int64 `json:"unknown_frames"`
	AckTimeouts   int64 `json:"ack_timeouts"`
}

// StatusEventPayload 周期性上行的节点状态事件（允许丢失）。
type StatusEventPayload struct {
	Agent       status.AgentStatus    `json:"agent"`
	Link        status.LinkState      `json:"link"`
	Reconnect   status.ReconnectPhase `json:"reconnect"`
	RetryCount  int                   `json:"retry_count"`
	PendingAcks int                   `json:"pending_acks"`
	CPUPercent  float64               `json:"cpu_percent"`
	MemMB       float64               `json:"mem_mb"`
	Counters    Counters              `json:"counters"`
	UptimeMs    int64                 `json:"uptime_ms"`
}
