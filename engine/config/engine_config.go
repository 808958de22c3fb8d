// Package config provides engine tuning knobs - NO bundle or session data.
//
// This module contains ONLY configuration that shapes engine behavior:
//   - Live reconnection policy
//   - Buffer capacities
//   - Reconciliation windows
//
// Everything that describes a recorded session (experiment descriptor, agent
// profiles, runtime config echoed by the backend) travels inside the bundle
// itself and is owned by engine/bundle.
package config

import (
	"fmt"
	"sync"
)

// EngineConfig holds reconciliation and playback tuning.
//
// A zero value is not usable. Construct via DefaultEngineConfig or
// EngineConfigFromMap; components fall back to the injected global when
// handed a nil config.
type EngineConfig struct {
	// Live Reconnection
	ReconnectBaseDelayMS int `json:"reconnect_base_delay_ms"` // First retry delay, doubled per attempt
	ReconnectMaxAttempts int `json:"reconnect_max_attempts"`  // Attempts before parking in error
	PingIntervalMS       int `json:"ping_interval_ms"`        // Client heartbeat cadence

	// Live Buffers
	RingCapacity int `json:"ring_capacity"` // Recent-event ring size

	// Diary Connectors
	ConnectorWindowMS    int64 `json:"connector_window_ms"`     // Cross-agent diary window around a death
	ConnectorMaxPerDeath int   `json:"connector_max_per_death"` // Earliest entries kept per death

	// Playback
	FrameIntervalMS int     `json:"frame_interval_ms"` // Playback frame-loop cadence
	DefaultSpeed    float64 `json:"default_speed"`     // Initial playback speed multiplier

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultEngineConfig returns an EngineConfig with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		// Live Reconnection
		ReconnectBaseDelayMS: 2000,
		ReconnectMaxAttempts: 5,
		PingIntervalMS:       15000,

		// Live Buffers
		RingCapacity: 1000,

		// Diary Connectors
		ConnectorWindowMS:    20000,
		ConnectorMaxPerDeath: 3,

		// Playback
		FrameIntervalMS: 16,
		DefaultSpeed:    1.0,

		// Logging
		LogLevel: "INFO",
	}
}

// EngineConfigFromMap creates EngineConfig from a map.
// Unknown keys are ignored.
func EngineConfigFromMap(config map[string]any) *EngineConfig {
	c := DefaultEngineConfig()

	if v, ok := config["reconnect_base_delay_ms"].(int); ok {
		c.ReconnectBaseDelayMS = v
	} else if v, ok := config["reconnect_base_delay_ms"].(float64); ok {
		c.ReconnectBaseDelayMS = int(v)
	}
	if v, ok := config["reconnect_max_attempts"].(int); ok {
		c.ReconnectMaxAttempts = v
	} else if v, ok := config["reconnect_max_attempts"].(float64); ok {
		c.ReconnectMaxAttempts = int(v)
	}
	if v, ok := config["ping_interval_ms"].(int); ok {
		c.PingIntervalMS = v
	} else if v, ok := config["ping_interval_ms"].(float64); ok {
		c.PingIntervalMS = int(v)
	}
	if v, ok := config["ring_capacity"].(int); ok {
		c.RingCapacity = v
	} else if v, ok := config["ring_capacity"].(float64); ok {
		c.RingCapacity = int(v)
	}
	if v, ok := config["connector_window_ms"].(int64); ok {
		c.ConnectorWindowMS = v
	} else if v, ok := config["connector_window_ms"].(int); ok {
		c.ConnectorWindowMS = int64(v)
	} else if v, ok := config["connector_window_ms"].(float64); ok {
		c.ConnectorWindowMS = int64(v)
	}
	if v, ok := config["connector_max_per_death"].(int); ok {
		c.ConnectorMaxPerDeath = v
	} else if v, ok := config["connector_max_per_death"].(float64); ok {
		c.ConnectorMaxPerDeath = int(v)
	}
	if v, ok := config["frame_interval_ms"].(int); ok {
		c.FrameIntervalMS = v
	} else if v, ok := config["frame_interval_ms"].(float64); ok {
		c.FrameIntervalMS = int(v)
	}
	if v, ok := config["default_speed"].(float64); ok {
		c.DefaultSpeed = v
	} else if v, ok := config["default_speed"].(int); ok {
		c.DefaultSpeed = float64(v)
	}
	if v, ok := config["log_level"].(string); ok {
		c.LogLevel = v
	}

	return c
}

// ToMap converts config to a map.
func (c *EngineConfig) ToMap() map[string]any {
	return map[string]any{
		"reconnect_base_delay_ms": c.ReconnectBaseDelayMS,
		"reconnect_max_attempts":  c.ReconnectMaxAttempts,
		"ping_interval_ms":        c.PingIntervalMS,
		"ring_capacity":           c.RingCapacity,
		"connector_window_ms":     c.ConnectorWindowMS,
		"connector_max_per_death": c.ConnectorMaxPerDeath,
		"frame_interval_ms":       c.FrameIntervalMS,
		"default_speed":           c.DefaultSpeed,
		"log_level":               c.LogLevel,
	}
}

// Validate reports the first out-of-range knob.
func (c *EngineConfig) Validate() error {
	if c.ReconnectBaseDelayMS <= 0 {
		return fmt.Errorf("reconnect_base_delay_ms must be positive, got %d", c.ReconnectBaseDelayMS)
	}
	if c.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("reconnect_max_attempts must be non-negative, got %d", c.ReconnectMaxAttempts)
	}
	if c.PingIntervalMS <= 0 {
		return fmt.Errorf("ping_interval_ms must be positive, got %d", c.PingIntervalMS)
	}
	if c.RingCapacity <= 0 {
		return fmt.Errorf("ring_capacity must be positive, got %d", c.RingCapacity)
	}
	if c.ConnectorWindowMS < 0 {
		return fmt.Errorf("connector_window_ms must be non-negative, got %d", c.ConnectorWindowMS)
	}
	if c.ConnectorMaxPerDeath < 0 {
		return fmt.Errorf("connector_max_per_death must be non-negative, got %d", c.ConnectorMaxPerDeath)
	}
	if c.FrameIntervalMS <= 0 {
		return fmt.Errorf("frame_interval_ms must be positive, got %d", c.FrameIntervalMS)
	}
	if c.DefaultSpeed <= 0 {
		return fmt.Errorf("default_speed must be positive, got %g", c.DefaultSpeed)
	}
	return nil
}

// =============================================================================
// GLOBAL CONFIG (set by process bootstrap)
// =============================================================================

var (
	globalEngineConfig *EngineConfig
	configMu           sync.RWMutex
)

// GetEngineConfig gets the engine configuration instance.
// Returns the injected config or defaults.
func GetEngineConfig() *EngineConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalEngineConfig == nil {
		return DefaultEngineConfig()
	}
	return globalEngineConfig
}

// SetEngineConfig sets the engine configuration instance.
// Called once at startup after parsing flags or an embedded config map.
func SetEngineConfig(config *EngineConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalEngineConfig = config
}

// ResetEngineConfig resets engine config to nil (useful for testing).
// After reset, GetEngineConfig() will return defaults.
func ResetEngineConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalEngineConfig = nil
}
