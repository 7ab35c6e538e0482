package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 从 YAML 文件读取并解析配置，并做基础校验与默认值补齐。
// 参数：
// - path: 配置文件路径
// 返回：
// - Config: 合并默认值后的配置
// - error: 读取/解析/校验失败原因
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置字段合法性并补齐 fleet 条目缺省值。
// 参数：
// - cfg: 待校验配置（缺省字段会就地补齐）
// 返回：
// - error: 校验失败原因
func Validate(cfg *Config) error {
	if cfg.Agent.TickInterval <= 0 {
		return fmt.Errorf("invalid agent.tick_interval: %s", cfg.Agent.TickInterval.Std())
	}
	if cfg.Agent.DialTimeout <= 0 {
		return fmt.Errorf("invalid agent.dial_timeout: %s", cfg.Agent.DialTimeout.Std())
	}
	if cfg.Agent.SendTimeout <= 0 {
		return fmt.Errorf("invalid agent.send_timeout: %s", cfg.Agent.SendTimeout.Std())
	}
	if cfg.Agent.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid agent.shutdown_timeout: %s", cfg.Agent.ShutdownTimeout.Std())
	}
	if cfg.Agent.StatusPort < 0 || cfg.Agent.StatusPort > 65535 {
		return fmt.Errorf("invalid agent.status_port: %d", cfg.Agent.StatusPort)
	}

	seen := make(map[string]bool, len(cfg.Fleet))
	for i := range cfg.Fleet {
		v := &cfg.Fleet[i]
		if v.VehicleID == "" {
			return fmt.Errorf("fleet[%d]: vehicle_id is required", i)
		}
		if seen[v.VehicleID] {
			return fmt.Errorf("fleet[%d]: duplicate vehicle_id %q", i, v.VehicleID)
		}
		seen[v.VehicleID] = true
		if _, err := ParseEndpoint(v.Center); err != nil {
			return fmt.Errorf("fleet[%d] (%s): %w", i, v.VehicleID, err)
		}
		applyVehicleDefaults(v)
		if *v.AckMaxRetries < 0 {
			return fmt.Errorf("fleet[%d] (%s): invalid ack_max_retries: %d", i, v.VehicleID, *v.AckMaxRetries)
		}
		if v.ReconnectMaxRetries < 0 {
			return fmt.Errorf("fleet[%d] (%s): invalid reconnect_max_retries: %d", i, v.VehicleID, v.ReconnectMaxRetries)
		}
		if v.ReconnectMaxDelay < v.ReconnectInitialDelay {
			return fmt.Errorf("fleet[%d] (%s): reconnect_max_delay < reconnect_initial_delay", i, v.VehicleID)
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "console"
	}
	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output=file")
	}
	return nil
}

// applyVehicleDefaults 用 DefaultVehicle 的值补齐未设置的链路参数。
func applyVehicleDefaults(v *VehicleConfig) {
	def := DefaultVehicle()
	if v.AckTimeout <= 0 {
		v.AckTimeout = def.AckTimeout
	}
	// 指针区分「未设置」与显式的 0（零次重试是合法策略）
	if v.AckMaxRetries == nil {
		v.AckMaxRetries = def.AckMaxRetries
	}
	if v.ReconnectInitialDelay <= 0 {
		v.ReconnectInitialDelay = def.ReconnectInitialDelay
	}
	if v.ReconnectMaxDelay <= 0 {
		v.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if v.StatusInterval <= 0 {
		v.StatusInterval = def.StatusInterval
	}
}
