package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// Addr 返回 host:port 形式的连接地址。
func (e Endpoint) Addr() string { return net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) }

// String 返回完整的端点文本（scheme://host:port）。
func (e Endpoint) String() string { return fmt.Sprintf("%s://%s", e.Scheme, e.Addr()) }

// ParseEndpoint 解析地面中心端点字符串（形如 "tcp://10.0.0.1:7700" 或 "srt://10.0.0.1:7701"）。
// 参数：
// - s: 端点字符串
// 返回：
// - Endpoint: 解析结果（scheme 仅支持 tcp/srt）
// - error: 解析失败原因
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("invalid endpoint: %q", s)
	}
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme != "tcp" && scheme != "srt" {
		return Endpoint{}, fmt.Errorf("unsupported endpoint scheme: %q", scheme)
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint host/port: %q", rest)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid endpoint port: %q", portStr)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint host: %q", rest)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port}, nil
}

type Duration time.Duration

// Std 返回标准库 time.Duration 表达。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML 支持从 YAML 中解析 Duration（如 500ms、5s、1m，或纯数字秒数）。
// 参数：
// - value: YAML 节点
// 返回：
// - error: 解析失败原因
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = 0
		return nil
	}
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*d = 0
		return nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration: %q", v)
	}
	*d = Duration(parsed)
	return nil
}

type ByteSize int64

// Int64 返回字节数的 int64 表达。
func (b ByteSize) Int64() int64 { return int64(b) }

// UnmarshalYAML 支持从 YAML 中解析 ByteSize（如 100MB、2GB、1024B）。
// 参数：
// - value: YAML 节点
// 返回：
// - error: 解析失败原因
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*b = 0
		return nil
	}
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*b = 0
		return nil
	}
	n, err := parseByteSize(v)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// parseByteSize 解析形如 "100MB"/"1.5GB" 的字节数文本。
// 参数：
// - s: 字节数文本
// 返回：
// - int64: 字节数
// - error: 解析失败原因
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		mult = 1
		s = strings.TrimSuffix(s, "B")
	}
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return int64(f * float64(mult)), nil
}

// DefaultConfig 返回一份可用的默认配置（用于未提供配置文件或作为缺省值合并）。
func DefaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			TickInterval:    Duration(200 * time.Millisecond),
			DialTimeout:     Duration(5 * time.Second),
			SendTimeout:     Duration(2 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			StatusPort:      0,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "/var/log/fleet-agent.log",
			MaxSize:  ByteSize(100 * 1024 * 1024),
			MaxAge:   7,
			Compress: true,
		},
	}
}

// DefaultVehicle 返回单载具链路参数的默认值（用于补齐 fleet 条目缺省字段）。
func DefaultVehicle() VehicleConfig {
	ackRetries := 3
	return VehicleConfig{
		AckTimeout:            Duration(5 * time.Second),
		AckMaxRetries:         &ackRetries,
		ReconnectInitialDelay: Duration(1 * time.Second),
		ReconnectMaxDelay:     Duration(30 * time.Second),
		ReconnectMaxRetries:   0,
		StatusInterval:        Duration(10 * time.Second),
	}
}
