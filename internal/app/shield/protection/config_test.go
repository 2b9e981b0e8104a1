package protection

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnMissingOrMalformed(t *testing.T) {
	inputs := map[string]any{
		"nil":          nil,
		"empty string": "",
		"garbage":      "{level: two",
		"json null":    "null",
		"json array":   "[1,2]",
		"bytes":        []byte("not json"),
		"wrong type":   42,
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			cfg := Load(raw)
			assert.Equal(t, LevelAuto, cfg.Level)
			assert.Equal(t, 3000*time.Millisecond, cfg.Timer)
			assert.Empty(t, cfg.Features.Names())
		})
	}
}

func TestLoad_WellFormed(t *testing.T) {
	cfg := Load(`{"level":1,"timer":2000,"features":["ai-detection","js-obfuscation"]}`)

	assert.Equal(t, LevelManual, cfg.Level)
	assert.Equal(t, 2*time.Second, cfg.Timer)
	assert.True(t, cfg.Features.Has(FeatureAIDetection))
	assert.True(t, cfg.Features.Has(FeatureJSObfuscation))
	assert.False(t, cfg.Features.Has(FeatureAdaptiveContent))
	assert.False(t, cfg.AutoProceed())
}

func TestLoad_Clamping(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		level Level
		timer time.Duration
	}{
		{"level out of range", `{"level":7,"timer":1000}`, LevelAuto, time.Second},
		{"level zero", `{"level":0,"timer":1000}`, LevelAuto, time.Second},
		{"negative timer", `{"level":1,"timer":-5}`, LevelManual, DefaultTimer},
		{"non numeric timer", `{"level":1,"timer":"soon"}`, LevelManual, DefaultTimer},
		{"numeric string timer", `{"level":"1","timer":"1500"}`, LevelManual, 1500 * time.Millisecond},
		{"zero timer", `{"level":2,"timer":0}`, LevelAuto, 0},
		{"missing fields", `{}`, LevelAuto, DefaultTimer},
		{"fractional level", `{"level":1.5,"timer":1000}`, LevelAuto, time.Second},
		{"fractional level string", `{"level":"1.2","timer":1000}`, LevelAuto, time.Second},
		{"integral float level", `{"level":1.0,"timer":1000}`, LevelManual, time.Second},
		{"timer past duration range", `{"level":1,"timer":1e13}`, LevelManual, DefaultTimer},
		{"timer at one day", `{"level":1,"timer":86400000}`, LevelManual, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load(tt.raw)
			assert.Equal(t, tt.level, cfg.Level)
			assert.Equal(t, tt.timer, cfg.Timer)
		})
	}
}

func TestLoad_UnknownFeaturesDropped(t *testing.T) {
	cfg := Load(map[string]any{
		"level":    2.0,
		"timer":    3000.0,
		"features": []any{"adaptive-content", "teleport", 12},
	})
	assert.Equal(t, []string{"adaptive-content"}, cfg.Features.Names())
}

func TestLoad_ReportsParseFailure(t *testing.T) {
	var got error
	ParseHook = func(err error) { got = err }
	defer func() { ParseHook = nil }()

	_ = Load("{")
	require.Error(t, got)
	assert.True(t, errors.Is(got, ErrParse))
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	in := Config{Level: LevelManual, Timer: 2500 * time.Millisecond, Features: NewFeatureSet(FeatureJSObfuscation, FeatureAdaptiveContent)}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":1,"timer":2500,"features":["adaptive-content","js-obfuscation"]}`, string(data))

	var out Config
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestConfig_DefaultMarshalsEmptyFeatures(t *testing.T) {
	data, err := json.Marshal(Load(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":2,"timer":3000,"features":[]}`, string(data))
}
