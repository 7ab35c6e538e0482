package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestParseEndpoint 验证中心端点字符串解析行为。
func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("tcp://10.0.0.1:7700")
	if err != nil {
		t.Fatal(err)
	}
	if e.Scheme != "tcp" || e.Host != "10.0.0.1" || e.Port != 7700 {
		t.Fatalf("bad endpoint: %+v", e)
	}
	if e.Addr() != "10.0.0.1:7700" {
		t.Fatalf("addr=%s", e.Addr())
	}

	s, err := ParseEndpoint("srt://center.example.com:7701")
	if err != nil {
		t.Fatal(err)
	}
	if s.Scheme != "srt" {
		t.Fatalf("scheme=%s", s.Scheme)
	}

	for _, bad := range []string{"", "10.0.0.1:7700", "udp://1.2.3.4:1", "tcp://1.2.3.4", "tcp://1.2.3.4:0", "tcp://:7700"} {
		if _, err := ParseEndpoint(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

// TestDurationUnmarshal 验证 Duration 支持从 YAML 文本解析（如 500ms/5s/纯数字秒数）。
func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
		C Duration `yaml:"c"`
	}
	if err := yaml.Unmarshal([]byte("a: 500ms\nb: 5s\nc: 2\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.A.Std() != 500*time.Millisecond {
		t.Fatalf("a=%s", cfg.A.Std())
	}
	if cfg.B.Std() != 5*time.Second {
		t.Fatalf("b=%s", cfg.B.Std())
	}
	if cfg.C.Std() != 2*time.Second {
		t.Fatalf("c=%s", cfg.C.Std())
	}

	var bad struct {
		A Duration `yaml:"a"`
	}
	if err := yaml.Unmarshal([]byte("a: soon\n"), &bad); err == nil {
		t.Fatalf("expected error")
	}
}

// TestByteSizeUnmarshal 验证 ByteSize 支持从 YAML 文本解析（如 100MB）。
func TestByteSizeUnmarshal(t *testing.T) {
	var cfg struct {
		Size ByteSize `yaml:"size"`
	}
	if err := yaml.Unmarshal([]byte("size: 100MB\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Size.Int64() != 100*1024*1024 {
		t.Fatalf("got=%d", cfg.Size.Int64())
	}
}
