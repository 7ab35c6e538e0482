package config

type Config struct {
	Agent   AgentConfig     `yaml:"agent"`
	Fleet   []VehicleConfig `yaml:"fleet"`
	Logging LoggingConfig   `yaml:"logging"`
}

type AgentConfig struct {
	TickInterval    Duration `yaml:"tick_interval"`
	DialTimeout     Duration `yaml:"dial_timeout"`
	SendTimeout     Duration `yaml:"send_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	StatusPort      int      `yaml:"status_port"`
}

type VehicleConfig struct {
	VehicleID             string   `yaml:"vehicle_id"`
	Center                string   `yaml:"center"`
	AckTimeout            Duration `yaml:"ack_timeout"`
	AckMaxRetries         *int     `yaml:"ack_max_retries"`
	ReconnectInitialDelay Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxRetries   int      `yaml:"reconnect_max_retries"`
	DisableReconnect      bool     `yaml:"disable_reconnect"`
	StatusInterval        Duration `yaml:"status_interval"`
}

// AckRetries 返回确认重试上限。
// 规则：
// - 未设置时取默认值；显式的 0 表示超时即终态、不重试
func (v VehicleConfig) AckRetries() int {
	if v.AckMaxRetries == nil {
		return *DefaultVehicle().AckMaxRetries
	}
	return *v.AckMaxRetries
}

type LoggingConfig struct {
	Level    string   `yaml:"level"`
	Format   string   `yaml:"format"`
	Output   string   `yaml:"output"`
	FilePath string   `yaml:"file_path"`
	MaxSize  ByteSize `yaml:"max_size"`
	MaxAge   int      `yaml:"max_age"`
	Compress bool     `yaml:"compress"`
}
