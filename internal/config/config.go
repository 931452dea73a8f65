package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Source SourceConfig `toml:"source"`
	Engine EngineConfig `toml:"engine"`
	Path   string       `toml:"-"`
}

// SourceConfig configures the officed activity source daemon.
type SourceConfig struct {
	Addr              string `toml:"addr"`
	DBPath            string `toml:"db_path"`
	FloorplanPath     string `toml:"floorplan_path"`
	ObserveIntervalMS int    `toml:"observe_interval_ms"`
	PingIntervalMS    int    `toml:"ping_interval_ms"`
	HistoryLimit      int    `toml:"history_limit"`
}

// EngineConfig configures one behavior engine instance (the monitor side).
type EngineConfig struct {
	BaseURL             string   `toml:"base_url"`
	OrchestratorID      string   `toml:"orchestrator_id"`
	ExcludedRoles       []string `toml:"excluded_roles"`
	ExcludedAgents      []string `toml:"excluded_agents"`
	PullIntervalMS      int      `toml:"pull_interval_ms"`
	RecomposeIntervalMS int      `toml:"recompose_interval_ms"`
	MeetingDurationMS   int      `toml:"meeting_duration_ms"`
	WalkSettleMS        int      `toml:"walk_settle_ms"`
	SpawnTTLMS          int      `toml:"spawn_ttl_ms"`
	RetryDelayMS        int      `toml:"retry_delay_ms"`
}

func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to a zero config when the
// file does not exist. Every knob has a working default, so both binaries
// run without any config file at all.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agent_office/config.toml"
	}
	return filepath.Join(home, ".agent_office", "config.toml")
}

func DurationMS(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func IntOrDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
