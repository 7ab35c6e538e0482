package agent

import (
	linkerrors "fleetlink/errors"
	linklog "fleetlink/log"
	"fleetlink/protocol"
	"fleetlink/transport"
)

// uplink 上行通道：把遥测与状态事件写入传输会话。
// 约束：
// - 发射后不管：不登记确认、不排队重发，断链期间的消息直接丢弃并计数
// - 下一个采样周期的新数据天然取代丢失的旧数据
type uplink struct {
	vehicleID string
	session   *transport.Session
	ctrs      *counters
}

func newUplink(vehicleID string, session *transport.Session, ctrs *counters) *uplink {
	return &uplink{vehicleID: vehicleID, session: session, ctrs: ctrs}
}

// Publish 序列化并发送一条遥测。
// 参数：
// - tm: 遥测载荷
// 返回：
// - error: SendFailed（断链或写失败，消息已丢弃）或序列化失败
func (u *uplink) Publish(tm protocol.Telemetry) error {
	f, err := protocol.NewTelemetry(u.vehicleID, tm)
	if err != nil {
		return err
	}
	return u.send(f)
}

// PublishEvent 发送一条周期性状态事件（与遥测同等的允许丢失语义）。
// 参数：
// - st: 状态载荷
func (u *uplink) PublishEvent(st protocol.StatusEventPayload) error {
	f, err := protocol.NewStatusEvent(u.vehicleID, st)
	if err != nil {
		return err
	}
	return u.send(f)
}

// sendHello 发送连接建立后的首帧，向中心表明载具身份。
func (u *uplink) sendHello(version string) error {
	return u.session.Send(protocol.NewHello(u.vehicleID, version))
}

func (u *uplink) send(f protocol.Frame) error {
	if err := u.session.Send(f); err != nil {
		u.ctrs.sendFailures.Add(1)
		if linkerrors.Code(err) == linkerrors.CodeSendFailed {
			linklog.ForVehicle(u.vehicleID).
				WithField("kind", string(f.Kind)).
				WithError(err).Debug("链路不可用，上行消息丢弃")
		}
		return err
	}
	return nil
}
