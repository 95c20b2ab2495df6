package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables through which an orchestrator can hand a process its
// configuration.
const (
	EnvConfigJSON    = "WORLDGEN_CONFIG_JSON"
	EnvConfigYAMLB64 = "WORLDGEN_CONFIG_YAML_B64"
)

// FromEnv decodes a configuration passed through the environment. ok is false
// when neither variable is set. The JSON variable wins when both are.
func FromEnv() (cfg *Config, ok bool, err error) {
	jsonPayload := os.Getenv(EnvConfigJSON)
	yamlPayload := os.Getenv(EnvConfigYAMLB64)
	if jsonPayload == "" && yamlPayload == "" {
		return nil, false, nil
	}

	data := []byte(jsonPayload)
	if jsonPayload == "" {
		raw, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return nil, true, fmt.Errorf("decode %s: %w", EnvConfigYAMLB64, err)
		}
		if data, err = yamlToJSON(raw); err != nil {
			return nil, true, fmt.Errorf("parse %s: %w", EnvConfigYAMLB64, err)
		}
	}

	if err := validateDocument(data); err != nil {
		return nil, true, fmt.Errorf("schema: %w", err)
	}
	cfg = Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, true, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, true, fmt.Errorf("validate env config: %w", err)
	}
	return cfg, true, nil
}

// WriteFromEnv stores an environment-provided configuration at cfgPath so a
// later Load picks it up. It reports whether anything was written.
func WriteFromEnv(cfgPath string) (bool, error) {
	cfg, ok, err := FromEnv()
	if err != nil || !ok {
		return false, err
	}
	if cfgPath == "" {
		return false, errors.New("configuration provided through the environment but no -config path supplied")
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}
