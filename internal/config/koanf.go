// Robovox - Voice-Driven Robot Coordination Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/robovox

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/robovox/config.yaml",
	"/etc/robovox/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence: ENV > File > Defaults. A config that fails validation
// returns a human-readable diagnostic; startup must treat that as fatal.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// NAV_UART_DEVICE -> nav.uart_device, REMOTE_PORT -> remote_interface.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"remote_interface.allowed_cidrs",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - IPC_UPSTREAM -> ipc.upstream
//   - NAV_UART_DEVICE -> nav.uart_device
//   - STT_MIN_CONFIDENCE -> stt.min_confidence
//   - REMOTE_ALLOWED_CIDRS -> remote_interface.allowed_cidrs
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// IPC mappings
		"ipc_upstream":        "ipc.upstream",
		"ipc_downstream":      "ipc.downstream",
		"ipc_embedded":        "ipc.embedded",
		"ipc_high_water_mark": "ipc.high_water_mark",

		// Nav / UART mappings
		"nav_uart_device":       "nav.uart_device",
		"nav_baud_rate":         "nav.baud_rate",
		"nav_write_queue_size":  "nav.write_queue_size",
		"nav_read_timeout_ms":   "nav.read_timeout_ms",
		"nav_reopen_backoff_ms": "nav.reopen_backoff_ms",
		"nav_max_line_bytes":    "nav.max_line_bytes",

		// STT mappings
		"stt_timeout_seconds": "stt.timeout_seconds",
		"stt_min_confidence":  "stt.min_confidence",

		// Orchestrator mappings
		"orchestrator_llm_timeout_seconds":      "orchestrator.llm_timeout_seconds",
		"orchestrator_speaking_timeout_seconds": "orchestrator.speaking_timeout_seconds",
		"orchestrator_error_timeout_seconds":    "orchestrator.error_timeout_seconds",

		// Safety mappings
		"safety_stop_distance_cm":    "safety.stop_distance_cm",
		"safety_warning_distance_cm": "safety.warning_distance_cm",
		"safety_sensor_freshness_ms": "safety.sensor_freshness_ms",

		// Remote interface mappings
		"remote_host":                "remote_interface.host",
		"remote_port":                "remote_interface.port",
		"remote_mjpeg_fps":           "remote_interface.mjpeg_fps",
		"remote_session_timeout_sec": "remote_interface.session_timeout_sec",
		"remote_allowed_cidrs":       "remote_interface.allowed_cidrs",
		"remote_intent_rate_limit":   "remote_interface.intent_rate_limit",

		// Memory mappings
		"memory_max_turns":       "memory.max_turns",
		"memory_timeout_seconds": "memory.timeout_seconds",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables
	// do not pollute the config.
	return ""
}
