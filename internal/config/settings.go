package config

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/earguard/earguard/internal/dose"
)

// --------------------------------------------------------------------------
// Runtime engine settings — stored as key/value rows, adjustable at runtime
// --------------------------------------------------------------------------

// Setting keys as persisted in the settings store.
const (
	SettingExchangeModel     = "exchange_model"      // "niosh" or "osha"
	SettingThresholds        = "thresholds"          // comma-separated dose percentages
	SettingCooldown          = "cooldown"            // Go duration string
	SettingInactivityTimeout = "inactivity_timeout"  // Go duration string
	SettingDailyLimitPercent = "daily_limit_percent" // float
)

// Settings holds the tunable engine parameters. Unlike Config these can
// change while the service runs; the engine reloads them on demand.
type Settings struct {
	Model             dose.Model
	Thresholds        []int
	Cooldown          time.Duration
	InactivityTimeout time.Duration
	DailyLimitPercent float64
}

// DefaultSettings returns the values used when the store has no overrides
// or holds ones that fail validation.
func DefaultSettings() Settings {
	return Settings{
		Model:             dose.NIOSH,
		Thresholds:        []int{50, 80, 100},
		Cooldown:          time.Hour,
		InactivityTimeout: 5 * time.Minute,
		DailyLimitPercent: 100,
	}
}

// Map renders the settings in their stored string form.
func (s Settings) Map() map[string]string {
	parts := make([]string, len(s.Thresholds))
	for i, t := range s.Thresholds {
		parts[i] = strconv.Itoa(t)
	}
	return map[string]string{
		SettingExchangeModel:     string(s.Model),
		SettingThresholds:        strings.Join(parts, ","),
		SettingCooldown:          s.Cooldown.String(),
		SettingInactivityTimeout: s.InactivityTimeout.String(),
		SettingDailyLimitPercent: strconv.FormatFloat(s.DailyLimitPercent, 'f', -1, 64),
	}
}

// SettingsReader is the subset of the store needed to load settings.
type SettingsReader interface {
	Settings(ctx context.Context) (map[string]string, error)
}

// SettingsWriter is the subset of the store needed to persist settings.
type SettingsWriter interface {
	PutSetting(ctx context.Context, key, value string) error
}

// LoadSettings reads the stored settings and merges them over the defaults.
// A missing or invalid value never fails the load: the default for that
// field is kept and a warning logged, so a bad write cannot take the
// engine down.
func LoadSettings(ctx context.Context, r SettingsReader, logger *slog.Logger) Settings {
	s := DefaultSettings()

	stored, err := r.Settings(ctx)
	if err != nil {
		logger.Warn("Settings unavailable, using defaults", "error", err)
		return s
	}

	if v, ok := stored[SettingExchangeModel]; ok {
		m, err := dose.ParseModel(v)
		if err != nil {
			logger.Warn("Invalid setting, keeping default", "key", SettingExchangeModel, "value", v, "error", err)
		} else {
			s.Model = m
		}
	}

	if v, ok := stored[SettingThresholds]; ok {
		ts, err := parseThresholds(v)
		if err != nil {
			logger.Warn("Invalid setting, keeping default", "key", SettingThresholds, "value", v, "error", err)
		} else {
			s.Thresholds = ts
		}
	}

	if v, ok := stored[SettingCooldown]; ok {
		d, err := parsePositiveDuration(v)
		if err != nil {
			logger.Warn("Invalid setting, keeping default", "key", SettingCooldown, "value", v, "error", err)
		} else {
			s.Cooldown = d
		}
	}

	if v, ok := stored[SettingInactivityTimeout]; ok {
		d, err := parsePositiveDuration(v)
		if err != nil {
			logger.Warn("Invalid setting, keeping default", "key", SettingInactivityTimeout, "value", v, "error", err)
		} else {
			s.InactivityTimeout = d
		}
	}

	if v, ok := stored[SettingDailyLimitPercent]; ok {
		f, err := parseLimitPercent(v)
		if err != nil {
			logger.Warn("Invalid setting, keeping default", "key", SettingDailyLimitPercent, "value", v, "error", err)
		} else {
			s.DailyLimitPercent = f
		}
	}

	return s
}

// SaveSettings persists every field of s to the store.
func SaveSettings(ctx context.Context, w SettingsWriter, s Settings) error {
	for key, value := range s.Map() {
		if err := w.PutSetting(ctx, key, value); err != nil {
			return fmt.Errorf("put setting %s: %w", key, err)
		}
	}
	return nil
}

// ValidateSetting checks a single key/value pair before it is written.
// Unknown keys are rejected so typos surface at write time rather than
// silently sitting in the store.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingExchangeModel:
		_, err := dose.ParseModel(value)
		return err
	case SettingThresholds:
		_, err := parseThresholds(value)
		return err
	case SettingCooldown, SettingInactivityTimeout:
		_, err := parsePositiveDuration(value)
		return err
	case SettingDailyLimitPercent:
		_, err := parseLimitPercent(value)
		return err
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

// --------------------------------------------------------------------------
// Value parsers
// --------------------------------------------------------------------------

func parseThresholds(v string) ([]int, error) {
	parts := strings.Split(v, ",")
	seen := make(map[int]bool, len(parts))
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", trimmed, err)
		}
		if n <= 0 || n > 1000 {
			return nil, fmt.Errorf("threshold %d out of range (1-1000)", n)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds in %q", v)
	}
	sort.Ints(out)
	return out, nil
}

func parsePositiveDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %s must be positive", d)
	}
	return d, nil
}

func parseLimitPercent(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("limit percent %v must be positive", f)
	}
	return f, nil
}
