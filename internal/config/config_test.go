// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Nav.BaudRate != 115200 {
		t.Errorf("default baud rate = %d, want 115200", cfg.Nav.BaudRate)
	}
	if got := cfg.STT.Timeout(); got != 15*time.Second {
		t.Errorf("default STT timeout = %v, want 15s", got)
	}
	if got := cfg.Orchestrator.LLMTimeout(); got != 10*time.Second {
		t.Errorf("default LLM timeout = %v, want 10s", got)
	}
	if got := cfg.Safety.Freshness(); got != 2*time.Second {
		t.Errorf("default sensor freshness = %v, want 2s", got)
	}
	if cfg.Safety.StopDistanceCm != 10 || cfg.Safety.WarningDistanceCm != 20 {
		t.Errorf("default safety thresholds = %d/%d, want 10/20",
			cfg.Safety.StopDistanceCm, cfg.Safety.WarningDistanceCm)
	}
	if got := cfg.Remote.SessionTimeout(); got != 300*time.Second {
		t.Errorf("default session timeout = %v, want 300s", got)
	}
	if cfg.Memory.MaxTurns != 10 {
		t.Errorf("default memory max turns = %d, want 10", cfg.Memory.MaxTurns)
	}
	if cfg.Nav.Commands["stop"] != "STOP" {
		t.Errorf("default stop command token = %q, want STOP", cfg.Nav.Commands["stop"])
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing upstream",
			mutate:  func(c *Config) { c.IPC.Upstream = "" },
			wantErr: "ipc.upstream",
		},
		{
			name:    "non-nats scheme",
			mutate:  func(c *Config) { c.IPC.Downstream = "http://127.0.0.1:4151" },
			wantErr: "nats://",
		},
		{
			name: "identical endpoints",
			mutate: func(c *Config) {
				c.IPC.Upstream = "nats://127.0.0.1:4150"
				c.IPC.Downstream = "nats://127.0.0.1:4150"
			},
			wantErr: "distinct",
		},
		{
			name:    "missing uart device",
			mutate:  func(c *Config) { c.Nav.UARTDevice = "" },
			wantErr: "nav.uart_device",
		},
		{
			name:    "command token with newline",
			mutate:  func(c *Config) { c.Nav.Commands["forward"] = "FORWARD\n" },
			wantErr: "line terminators",
		},
		{
			name:    "missing stop mapping",
			mutate:  func(c *Config) { delete(c.Nav.Commands, "stop") },
			wantErr: "stop",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.STT.MinConfidence = 1.5 },
			wantErr: "stt.min_confidence",
		},
		{
			name: "warning below stop distance",
			mutate: func(c *Config) {
				c.Safety.StopDistanceCm = 30
				c.Safety.WarningDistanceCm = 20
			},
			wantErr: "warning_distance_cm",
		},
		{
			name:    "bad cidr",
			mutate:  func(c *Config) { c.Remote.AllowedCIDRs = []string{"not-a-cidr"} },
			wantErr: "not a valid CIDR",
		},
		{
			name:    "empty cidr list",
			mutate:  func(c *Config) { c.Remote.AllowedCIDRs = nil },
			wantErr: "allowed_cidrs",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"IPC_UPSTREAM", "ipc.upstream"},
		{"NAV_UART_DEVICE", "nav.uart_device"},
		{"STT_MIN_CONFIDENCE", "stt.min_confidence"},
		{"ORCHESTRATOR_LLM_TIMEOUT_SECONDS", "orchestrator.llm_timeout_seconds"},
		{"SAFETY_STOP_DISTANCE_CM", "safety.stop_distance_cm"},
		{"REMOTE_PORT", "remote_interface.port"},
		{"REMOTE_SESSION_TIMEOUT_SEC", "remote_interface.session_timeout_sec"},
		{"MEMORY_MAX_TURNS", "memory.max_turns"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SAFETY_STOP_DISTANCE_CM", "25")
	t.Setenv("SAFETY_WARNING_DISTANCE_CM", "40")
	t.Setenv("REMOTE_ALLOWED_CIDRS", "192.168.1.0/24, 10.0.0.0/8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Safety.StopDistanceCm != 25 {
		t.Errorf("stop distance = %d, want 25 from env", cfg.Safety.StopDistanceCm)
	}
	if cfg.Safety.WarningDistanceCm != 40 {
		t.Errorf("warning distance = %d, want 40 from env", cfg.Safety.WarningDistanceCm)
	}
	want := []string{"192.168.1.0/24", "10.0.0.0/8"}
	if len(cfg.Remote.AllowedCIDRs) != len(want) {
		t.Fatalf("allowed CIDRs = %v, want %v", cfg.Remote.AllowedCIDRs, want)
	}
	for i := range want {
		if cfg.Remote.AllowedCIDRs[i] != want[i] {
			t.Errorf("allowed CIDRs[%d] = %q, want %q", i, cfg.Remote.AllowedCIDRs[i], want[i])
		}
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug from env", cfg.Logging.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	yaml := `
nav:
  uart_device: /dev/ttyAMA0
stt:
  timeout_seconds: 20
remote_interface:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Nav.UARTDevice != "/dev/ttyAMA0" {
		t.Errorf("uart device = %q, want /dev/ttyAMA0 from file", cfg.Nav.UARTDevice)
	}
	if cfg.STT.TimeoutSeconds != 20 {
		t.Errorf("stt timeout = %d, want 20 from file", cfg.STT.TimeoutSeconds)
	}
	if cfg.Remote.Port != 9000 {
		t.Errorf("remote port = %d, want 9000 from file", cfg.Remote.Port)
	}
	// Untouched keys keep defaults.
	if cfg.Nav.BaudRate != 115200 {
		t.Errorf("baud rate = %d, want default 115200", cfg.Nav.BaudRate)
	}
}

func TestLoadRejectsInvalidFileValue(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	yaml := `
safety:
  stop_distance_cm: -5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to reject negative stop distance")
	}
}
