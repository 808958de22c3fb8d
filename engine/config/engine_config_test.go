package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// DEFAULT CONFIG TESTS
// =============================================================================

func TestDefaultEngineConfig(t *testing.T) {
	// Test default values are set correctly.
	config := DefaultEngineConfig()

	// Live Reconnection
	assert.Equal(t, 2000, config.ReconnectBaseDelayMS)
	assert.Equal(t, 5, config.ReconnectMaxAttempts)
	assert.Equal(t, 15000, config.PingIntervalMS)

	// Live Buffers
	assert.Equal(t, 1000, config.RingCapacity)

	// Diary Connectors
	assert.Equal(t, int64(20000), config.ConnectorWindowMS)
	assert.Equal(t, 3, config.ConnectorMaxPerDeath)

	// Playback
	assert.Equal(t, 16, config.FrameIntervalMS)
	assert.Equal(t, 1.0, config.DefaultSpeed)

	// Logging
	assert.Equal(t, "INFO", config.LogLevel)
}

// =============================================================================
// FROM MAP TESTS
// =============================================================================

func TestEngineConfigFromMapPartial(t *testing.T) {
	// Test creating config from partial map.
	configMap := map[string]any{
		"reconnect_base_delay_ms": 500,
		"ring_capacity":           64,
	}

	config := EngineConfigFromMap(configMap)

	// Overridden values
	assert.Equal(t, 500, config.ReconnectBaseDelayMS)
	assert.Equal(t, 64, config.RingCapacity)

	// Default values preserved
	assert.Equal(t, 5, config.ReconnectMaxAttempts)
	assert.Equal(t, int64(20000), config.ConnectorWindowMS)
}

func TestEngineConfigFromMapUnknownKeysIgnored(t *testing.T) {
	// Unknown keys should be ignored.
	configMap := map[string]any{
		"ring_capacity": 128,
		"unknown_key":   "should be ignored",
	}

	config := EngineConfigFromMap(configMap)

	assert.Equal(t, 128, config.RingCapacity)
}

func TestEngineConfigFromMapWithFloats(t *testing.T) {
	// Test handling float64 values (common from JSON).
	configMap := map[string]any{
		"reconnect_base_delay_ms": float64(1000),
		"reconnect_max_attempts":  float64(3),
		"connector_window_ms":     float64(30000),
	}

	config := EngineConfigFromMap(configMap)

	assert.Equal(t, 1000, config.ReconnectBaseDelayMS)
	assert.Equal(t, 3, config.ReconnectMaxAttempts)
	assert.Equal(t, int64(30000), config.ConnectorWindowMS)
}

func TestEngineConfigFromMapSpeed(t *testing.T) {
	// Test speed accepts both float and int forms.
	config := EngineConfigFromMap(map[string]any{"default_speed": 0.5})
	assert.Equal(t, 0.5, config.DefaultSpeed)

	config = EngineConfigFromMap(map[string]any{"default_speed": 2})
	assert.Equal(t, 2.0, config.DefaultSpeed)
}

// =============================================================================
// TO MAP TESTS
// =============================================================================

func TestEngineConfigToMap(t *testing.T) {
	// Test converting config to map.
	config := DefaultEngineConfig()

	configMap := config.ToMap()

	assert.Equal(t, 2000, configMap["reconnect_base_delay_ms"])
	assert.Equal(t, 1000, configMap["ring_capacity"])
	assert.Equal(t, int64(20000), configMap["connector_window_ms"])
	assert.Equal(t, "INFO", configMap["log_level"])
}

// =============================================================================
// VALIDATE TESTS
// =============================================================================

func TestEngineConfigValidateDefaults(t *testing.T) {
	// Defaults must validate.
	assert.NoError(t, DefaultEngineConfig().Validate())
}

func TestEngineConfigValidateRejectsBadKnobs(t *testing.T) {
	// Each out-of-range knob should be reported.
	config := DefaultEngineConfig()
	config.RingCapacity = 0
	assert.ErrorContains(t, config.Validate(), "ring_capacity")

	config = DefaultEngineConfig()
	config.ReconnectBaseDelayMS = -1
	assert.ErrorContains(t, config.Validate(), "reconnect_base_delay_ms")

	config = DefaultEngineConfig()
	config.DefaultSpeed = 0
	assert.ErrorContains(t, config.Validate(), "default_speed")

	config = DefaultEngineConfig()
	config.ConnectorWindowMS = -5
	assert.ErrorContains(t, config.Validate(), "connector_window_ms")
}

func TestEngineConfigValidateZeroAttempts(t *testing.T) {
	// Zero reconnect attempts means never retry; that is a valid policy.
	config := DefaultEngineConfig()
	config.ReconnectMaxAttempts = 0
	assert.NoError(t, config.Validate())
}

// =============================================================================
// GLOBAL CONFIG TESTS
// =============================================================================

func TestGetEngineConfigDefault(t *testing.T) {
	// GetEngineConfig should return defaults when not set.
	ResetEngineConfig()

	config := GetEngineConfig()

	assert.Equal(t, 1000, config.RingCapacity)
}

func TestSetAndGetEngineConfig(t *testing.T) {
	// Test setting and getting global config.
	defer ResetEngineConfig()

	customConfig := DefaultEngineConfig()
	customConfig.RingCapacity = 250

	SetEngineConfig(customConfig)

	config := GetEngineConfig()
	assert.Equal(t, 250, config.RingCapacity)
}

func TestResetEngineConfig(t *testing.T) {
	// Test resetting global config.
	customConfig := DefaultEngineConfig()
	customConfig.RingCapacity = 250
	SetEngineConfig(customConfig)

	ResetEngineConfig()

	config := GetEngineConfig()
	assert.Equal(t, 1000, config.RingCapacity) // Back to default
}

// =============================================================================
// ROUNDTRIP TESTS
// =============================================================================

func TestEngineConfigRoundtrip(t *testing.T) {
	// Test that config survives roundtrip through map.
	original := DefaultEngineConfig()
	original.ReconnectBaseDelayMS = 750
	original.ConnectorMaxPerDeath = 5
	original.DefaultSpeed = 4.0

	configMap := original.ToMap()
	restored := EngineConfigFromMap(configMap)

	assert.Equal(t, original.ReconnectBaseDelayMS, restored.ReconnectBaseDelayMS)
	assert.Equal(t, original.ConnectorMaxPerDeath, restored.ConnectorMaxPerDeath)
	assert.Equal(t, original.DefaultSpeed, restored.DefaultSpeed)
	assert.Equal(t, original.ConnectorWindowMS, restored.ConnectorWindowMS)
}
