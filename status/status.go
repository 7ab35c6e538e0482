package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

type LinkState string

const (
	LinkDisconnected LinkState = "Disconnected"
	LinkConnecting   LinkState = "Connecting"
	LinkConnected    LinkState = "Connected"
)

// String 返回链路状态文本。
func (s LinkState) String() string { return string(s) }

// ParseLinkState 将文本解析为 LinkState。
// 参数：
// - v: 状态文本（Disconnected/Connecting/Connected）
// 返回：
// - LinkState: 解析结果
// - error: 未知状态时返回错误
func ParseLinkState(v string) (LinkState, error) {
	switch strings.TrimSpace(v) {
	case string(LinkDisconnected):
		return LinkDisconnected, nil
	case string(LinkConnecting):
		return LinkConnecting, nil
	case string(LinkConnected):
		return LinkConnected, nil
	default:
		return "", fmt.Errorf("unknown LinkState: %q", v)
	}
}

// MarshalJSON 将 LinkState 编码为 JSON 字符串。
func (s LinkState) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 LinkState。
func (s *LinkState) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseLinkState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type ReconnectPhase string

const (
	ReconnectIdle    ReconnectPhase = "Idle"
	ReconnectRunning ReconnectPhase = "Reconnecting"
	ReconnectFailed  ReconnectPhase = "Failed"
)

// String 返回重连阶段文本。
func (s ReconnectPhase) String() string { return string(s) }

// ParseReconnectPhase 将文本解析为 ReconnectPhase。
// 参数：
// - v: 阶段文本（Idle/Reconnecting/Failed）
// 返回：
// - ReconnectPhase: 解析结果
// - error: 未知阶段时返回错误
func ParseReconnectPhase(v string) (ReconnectPhase, error) {
	switch strings.TrimSpace(v) {
	case string(ReconnectIdle):
		return ReconnectIdle, nil
	case string(ReconnectRunning):
		return ReconnectRunning, nil
	case string(ReconnectFailed):
		return ReconnectFailed, nil
	default:
		return "", fmt.Errorf("unknown ReconnectPhase: %q", v)
	}
}

// MarshalJSON 将 ReconnectPhase 编码为 JSON 字符串。
func (s ReconnectPhase) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 ReconnectPhase。
func (s *ReconnectPhase) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseReconnectPhase(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type AgentStatus string

const (
	AgentCreated AgentStatus = "Created"
	AgentRunning AgentStatus = "Running"
	AgentStopped AgentStatus = "Stopped"
)

// String 返回节点代理状态文本。
func (s AgentStatus) String() string { return string(s) }

// ParseAgentStatus 将文本解析为 AgentStatus。
// 参数：
// - v: 状态文本（Created/Running/Stopped）
// 返回：
// - AgentStatus: 解析结果
// - error: 未知状态时返回错误
func ParseAgentStatus(v string) (AgentStatus, error) {
	switch strings.TrimSpace(v) {
	case string(AgentCreated):
		return AgentCreated, nil
	case string(AgentRunning):
		return AgentRunning, nil
	case string(AgentStopped):
		return AgentStopped, nil
	default:
		return "", fmt.Errorf("unknown AgentStatus: %q", v)
	}
}

// MarshalJSON 将 AgentStatus 编码为 JSON 字符串。
func (s AgentStatus) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 AgentStatus。
func (s *AgentStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseAgentStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
