package protection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Level selects how a gated session proceeds once its countdown ends.
type Level int

const (
	// LevelManual enables a "Continue" control; nothing happens automatically.
	LevelManual Level = 1
	// LevelAuto proceeds on its own after a short grace delay.
	LevelAuto Level = 2
)

const (
	DefaultLevel = LevelAuto
	DefaultTimer = 3000 * time.Millisecond
)

// ErrParse is reported through ParseHook when a raw config could not be used.
var ErrParse = errors.New("protection config parse error")

// ParseHook, when set, receives every recovered parse failure. Load itself never fails.
var ParseHook func(err error)

// Config is the per-link protection configuration. It is immutable once loaded.
type Config struct {
	Level    Level
	Timer    time.Duration
	Features FeatureSet
}

// Default returns {level: 2, timer: 3000ms, features: none}.
func Default() Config {
	return Config{Level: DefaultLevel, Timer: DefaultTimer}
}

// AutoProceed reports whether READY should schedule an automatic redirect.
func (c Config) AutoProceed() bool {
	return c.Level == LevelAuto
}

type wireConfig struct {
	Level    int      `json:"level"`
	Timer    int64    `json:"timer"`
	Features []string `json:"features"`
}

// MarshalJSON writes the persisted shape {"level":..,"timer":<ms>,"features":[..]}.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireConfig{
		Level:    int(c.Level),
		Timer:    c.Timer.Milliseconds(),
		Features: c.Features.Names(),
	})
}

// UnmarshalJSON applies the same normalisation as Load and never fails.
func (c *Config) UnmarshalJSON(data []byte) error {
	*c = Load(data)
	return nil
}

// Load normalises a raw protection config. Accepted inputs are nil, string,
// []byte, json.RawMessage, map[string]any and Config; anything unusable yields
// Default().
func Load(raw any) Config {
	switch v := raw.(type) {
	case nil:
		return Default()
	case Config:
		return normalize(v)
	case *Config:
		if v == nil {
			return Default()
		}
		return normalize(*v)
	case string:
		return loadBytes([]byte(v))
	case []byte:
		return loadBytes(v)
	case json.RawMessage:
		return loadBytes(v)
	case map[string]any:
		return fromMap(v)
	default:
		report(fmt.Errorf("%w: unsupported type %T", ErrParse, raw))
		return Default()
	}
}

func loadBytes(data []byte) Config {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Default()
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		report(fmt.Errorf("%w: %v", ErrParse, err))
		return Default()
	}
	if m == nil {
		return Default()
	}
	return fromMap(m)
}

func fromMap(m map[string]any) Config {
	cfg := Default()

	if level, ok := number(m["level"]); ok && (level == 1 || level == 2) {
		cfg.Level = Level(level)
	}

	if ms, ok := number(m["timer"]); ok && ms >= 0 && ms <= maxTimerMillis {
		cfg.Timer = time.Duration(ms * float64(time.Millisecond))
	}

	if list, ok := m["features"].([]any); ok {
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				continue
			}
			if f, ok := ParseFeature(name); ok {
				cfg.Features = cfg.Features.With(f)
			}
		}
	}

	return cfg
}

func normalize(c Config) Config {
	if c.Level != LevelManual && c.Level != LevelAuto {
		c.Level = DefaultLevel
	}
	if c.Timer < 0 {
		c.Timer = DefaultTimer
	}
	c.Features &= allFeatures
	return c
}

// maxTimerMillis keeps the countdown representable as a time.Duration.
const maxTimerMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// number accepts finite JSON numbers and numeric strings. Fractional levels
// therefore fail the {1, 2} check instead of being truncated into it.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func report(err error) {
	if ParseHook != nil {
		ParseHook(err)
	}
}
