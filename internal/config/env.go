// Package config is the environment and priority-rules configuration
// surface spec §5/§6 describes: a set of env vars read once at boot plus a
// YAML priority-rules file, reloadable on SIGHUP or file change. Adapted
// from teacher's cmd/cliaimonitor/main.go flag-and-env-var bootstrap and
// internal/agents/config.go's yaml.v3 load pattern, centralized here
// instead of scattered across main.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env is the parsed environment surface spec §6 names.
type Env struct {
	StoreURL            string
	AgentID             string
	AgentType           string
	HeartbeatInterval   time.Duration
	TaskTimeout         time.Duration
	DedupTTL            time.Duration
	StarvationThreshold time.Duration
	MaxAttempts         int
}

// Defaults, matching spec §5's "Timeouts" table.
const (
	defaultHeartbeatIntervalMS   = 30_000
	defaultTaskTimeoutMS         = 300_000
	defaultDedupTTLSec           = 300
	defaultStarvationThresholdMS = 300_000
	defaultMaxAttempts           = 3
)

// LoadEnv reads the spec §6 environment surface, applying the spec §5
// defaults for anything unset. AGENT_ID and AGENT_TYPE have no sensible
// default and are returned as an error if missing.
func LoadEnv() (Env, error) {
	e := Env{
		StoreURL:  getOr("STORE_URL", "redis://localhost:6379/0"),
		AgentID:   os.Getenv("AGENT_ID"),
		AgentType: os.Getenv("AGENT_TYPE"),
	}
	if e.AgentID == "" {
		return Env{}, fmt.Errorf("config: AGENT_ID is required")
	}
	if e.AgentType == "" {
		return Env{}, fmt.Errorf("config: AGENT_TYPE is required")
	}

	var err error
	if e.HeartbeatInterval, err = getDurationMS("HEARTBEAT_INTERVAL_MS", defaultHeartbeatIntervalMS); err != nil {
		return Env{}, err
	}
	if e.TaskTimeout, err = getDurationMS("TASK_TIMEOUT_MS", defaultTaskTimeoutMS); err != nil {
		return Env{}, err
	}
	if e.DedupTTL, err = getDurationSec("DEDUP_TTL_SEC", defaultDedupTTLSec); err != nil {
		return Env{}, err
	}
	if e.StarvationThreshold, err = getDurationMS("STARVATION_THRESHOLD_MS", defaultStarvationThresholdMS); err != nil {
		return Env{}, err
	}
	if e.MaxAttempts, err = getInt("MAX_ATTEMPTS", defaultMaxAttempts); err != nil {
		return Env{}, err
	}
	return e, nil
}

func getOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDurationMS(key string, defMS int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defMS) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, v, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getDurationSec(key string, defSec int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defSec) * time.Second, nil
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, v, err)
	}
	return time.Duration(sec) * time.Second, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s=%q: %w", key, v, err)
	}
	return n, nil
}
