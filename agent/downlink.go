package agent

import (
	"encoding/json"
	"time"

	"fleetlink/ack"
	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
	"fleetlink/protocol"
	"fleetlink/transport"
)

// Handlers 下行消息的外部处理器。返回值仅用于回执与日志，不影响接收循环。
type Handlers struct {
	// OnCommand 处理一条指令帧。
	OnCommand func(vehicleID, requestID string, cmd protocol.CommandPayload) error
	// OnMission 处理一条任务帧。
	OnMission func(vehicleID, requestID string, m protocol.MissionPayload) error
}

// downlink 下行通道：按类别分发入站帧并维护回执的确认闭环。
// 规则：
// - command/mission 交给外部处理器，处理失败只记录、不中断接收
// - 携带 request_id 的帧在分发后发送 response 并登记确认，直到中心 ack
// - ack 帧按 request_id 匹配待确认回执
// - 未知类别计数后忽略
type downlink struct {
	vehicleID string
	session   *transport.Session
	tracker   *ack.Tracker
	handlers  Handlers
	ctrs      *counters

	ackTimeout    time.Duration
	ackMaxRetries int
}

func newDownlink(vehicleID string, session *transport.Session, tracker *ack.Tracker,
	handlers Handlers, ctrs *counters, ackTimeout time.Duration, ackMaxRetries int) *downlink {
	return &downlink{
		vehicleID:     vehicleID,
		session:       session,
		tracker:       tracker,
		handlers:      handlers,
		ctrs:          ctrs,
		ackTimeout:    ackTimeout,
		ackMaxRetries: ackMaxRetries,
	}
}

// handleFrame 在接收 goroutine 上逐帧调用（帧按线序到达）。
func (d *downlink) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindAck:
		if !d.tracker.Acknowledge(f.RequestID) {
			linklog.ForVehicle(d.vehicleID).
				WithField("request_id", f.RequestID).Debug("忽略未知或重复的确认帧")
		}

	case protocol.KindCommand:
		var cp protocol.CommandPayload
		if err := json.Unmarshal(f.Payload, &cp); err != nil {
			d.reject(f, linkerrors.Wrap(linkerrors.CodeMessageParse, "unmarshal command", err))
			return
		}
		var herr error
		if d.handlers.OnCommand != nil {
			herr = d.handlers.OnCommand(d.vehicleID, f.RequestID, cp)
		}
		if herr != nil {
			linklog.ForVehicle(d.vehicleID).
				WithField("request_id", f.RequestID).
				WithField("action", cp.Action).
				WithError(herr).Warn("指令处理失败")
		}
		d.respond(f, herr)

	case protocol.KindMission:
		var mp protocol.MissionPayload
		if err := json.Unmarshal(f.Payload, &mp); err != nil {
			d.reject(f, linkerrors.Wrap(linkerrors.CodeMessageParse, "unmarshal mission", err))
			return
		}
		var herr error
		if d.handlers.OnMission != nil {
			herr = d.handlers.OnMission(d.vehicleID, f.RequestID, mp)
		}
		if herr != nil {
			linklog.ForVehicle(d.vehicleID).
				WithField("request_id", f.RequestID).
				WithField("mission_id", mp.MissionID).
				WithError(herr).Warn("任务处理失败")
		}
		d.respond(f, herr)

	default:
		d.ctrs.unknownFrames.Add(1)
		linklog.ForVehicle(d.vehicleID).
			WithField("kind", string(f.Kind)).
			WithError(linkerrors.New(linkerrors.CodeUnknownFrameKind, "unknown frame kind")).
			Warn("忽略未知类别的下行帧")
	}
}

// reject 记录载荷解析失败并以 error 状态回执。
func (d *downlink) reject(f protocol.Frame, err error) {
	d.ctrs.parseErrors.Add(1)
	linklog.ForVehicle(d.vehicleID).
		WithField("kind", string(f.Kind)).
		WithField("request_id", f.RequestID).
		WithError(err).Warn("下行帧载荷无法解析")
	d.respond(f, err)
}

// respond 发送执行回执并登记确认闭环：超时重发回执，直到中心 ack 或耗尽重试。
// 不携带 request_id 的帧无需回执。
func (d *downlink) respond(f protocol.Frame, herr error) {
	if f.RequestID == "" {
		return
	}
	resp := protocol.NewResponse(d.vehicleID, f.RequestID, f.Kind, herr)
	if err := d.session.Send(resp); err != nil {
		d.ctrs.sendFailures.Add(1)
		linklog.ForVehicle(d.vehicleID).
			WithField("request_id", f.RequestID).
			WithError(err).Warn("回执发送失败，等待重发")
	}
	d.tracker.Register(f.RequestID, d.ackTimeout, d.ackMaxRetries, func(id string, attempt int) {
		if err := d.session.Send(resp); err != nil {
			d.ctrs.sendFailures.Add(1)
		}
	})
}
