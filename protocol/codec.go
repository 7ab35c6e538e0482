package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	linkerrors "fleetlink/errors"
)

// MaxFrameSize 单帧编码后的字节数上限（含换行符）。超限帧视为解析错误。
const MaxFrameSize = 256 * 1024

// EncodeFrame 将 Frame 编码为一行 JSON（末尾带 '\n'）。
// 参数：
// - f: 待编码帧
// 返回：
// - []byte: 编码结果
// - error: 序列化失败或超出 MaxFrameSize
func EncodeFrame(f Frame) ([]byte, error) {
	if f.Kind == "" {
		return nil, linkerrors.New(linkerrors.CodeMessageParse, "frame kind is empty")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, linkerrors.Wrap(linkerrors.CodeMessageParse, "marshal frame", err)
	}
	if len(b)+1 > MaxFrameSize {
		return nil, linkerrors.New(linkerrors.CodeMessageParse,
			fmt.Sprintf("frame too large: %d bytes", len(b)+1))
	}
	return append(b, '\n'), nil
}

// DecodeFrame 从一行字节解码 Frame（不含换行符也可）。
// 参数：
// - line: 一行 JSON 字节
// 返回：
// - Frame: 解码结果
// - error: 非法 JSON 或缺失 type 字段
func DecodeFrame(line []byte) (Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{}, linkerrors.New(linkerrors.CodeMessageParse, "empty frame")
	}
	if len(line) > MaxFrameSize {
		return Frame{}, linkerrors.New(linkerrors.CodeMessageParse,
			fmt.Sprintf("frame too large: %d bytes", len(line)))
	}
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, linkerrors.Wrap(linkerrors.CodeMessageParse, "unmarshal frame", err)
	}
	if f.Kind == "" {
		return Frame{}, linkerrors.New(linkerrors.CodeMessageParse, "frame missing type")
	}
	return f, nil
}

// NewHello 构造连接建立后的首帧（载具身份标识）。
// 参数：
// - vehicleID: 载具标识
// - version: 节点代理版本
func NewHello(vehicleID, version string) Frame {
	payload, _ := json.Marshal(HelloPayload{Version: version})
	return Frame{Kind: KindHello, VehicleID: vehicleID, Payload: payload}
}

// NewTelemetry 构造上行遥测帧。
// 参数：
// - vehicleID: 载具标识
// - tm: 遥测载荷
// 返回：
// - Frame: 遥测帧
// - error: 序列化失败原因
func NewTelemetry(vehicleID string, tm Telemetry) (Frame, error) {
	payload, err := json.Marshal(tm)
	if err != nil {
		return Frame{}, linkerrors.Wrap(linkerrors.CodeMessageParse, "marshal telemetry", err)
	}
	return Frame{Kind: KindTelemetry, VehicleID: vehicleID, Payload: payload}, nil
}

// NewResponse 构造下行消息的执行回执帧。
// 参数：
// - vehicleID: 载具标识
// - requestID: 被回执消息的关联标识
// - of: 被回执消息的类别（command/mission）
// - err: 执行错误（nil 表示成功）
func NewResponse(vehicleID, requestID string, of FrameKind, err error) Frame {
	rp := ResponsePayload{Of: of, Status: "ok"}
	if err != nil {
		rp.Status = "error"
		rp.Error = err.Error()
	}
	payload, _ := json.Marshal(rp)
	return Frame{Kind: KindResponse, VehicleID: vehicleID, RequestID: requestID, Payload: payload}
}

// NewAck 构造确认帧（仅携带关联标识）。
// 参数：
// - requestID: 被确认消息的关联标识
func NewAck(requestID string) Frame {
	return Frame{Kind: KindAck, RequestID: requestID}
}

// NewStatusEvent 构造周期性状态事件帧。
// 参数：
// - vehicleID: 载具标识
// - st: 状态载荷
// 返回：
// - Frame: 事件帧
// - error: 序列化失败原因
func NewStatusEvent(vehicleID string, st StatusEventPayload) (Frame, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return Frame{}, linkerrors.Wrap(linkerrors.CodeMessageParse, "marshal status event", err)
	}
	return Frame{Kind: KindEvent, VehicleID: vehicleID, Payload: payload}, nil
}
