package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/earguard/earguard/internal/dose"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSettings struct {
	values map[string]string
	err    error
}

func (f *fakeSettings) Settings(ctx context.Context) (map[string]string, error) {
	return f.values, f.err
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/earguard")
	t.Setenv("API_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENGINE_TIMEZONE", "America/New_York")
	t.Setenv("SAMPLE_RETENTION_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/earguard" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowOrigins = %v", cfg.CORSAllowOrigins)
	}
	if cfg.Location.String() != "America/New_York" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENGINE_TIMEZONE", "")
	t.Setenv("API_PORT", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", cfg.APIPort)
	}
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location)
	}
	if cfg.SyncWindowDays != 14 {
		t.Errorf("SyncWindowDays = %d, want 14", cfg.SyncWindowDays)
	}
	if !cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled = false, want true")
	}
}

func TestLoadBadTimezone(t *testing.T) {
	t.Setenv("ENGINE_TIMEZONE", "Not/AZone")
	if _, err := Load(); err == nil {
		t.Fatal("Load with bad timezone: want error, got nil")
	}
}

func TestLoadSettingsEmptyStore(t *testing.T) {
	got := LoadSettings(context.Background(), &fakeSettings{values: map[string]string{}}, discardLogger())
	want := DefaultSettings()

	if got.Model != want.Model {
		t.Errorf("Model = %v, want %v", got.Model, want.Model)
	}
	if got.Cooldown != want.Cooldown {
		t.Errorf("Cooldown = %v, want %v", got.Cooldown, want.Cooldown)
	}
	if got.InactivityTimeout != want.InactivityTimeout {
		t.Errorf("InactivityTimeout = %v, want %v", got.InactivityTimeout, want.InactivityTimeout)
	}
	if len(got.Thresholds) != 3 || got.Thresholds[0] != 50 || got.Thresholds[2] != 100 {
		t.Errorf("Thresholds = %v, want [50 80 100]", got.Thresholds)
	}
}

func TestLoadSettingsStoreError(t *testing.T) {
	r := &fakeSettings{err: fmt.Errorf("connection refused")}
	got := LoadSettings(context.Background(), r, discardLogger())
	if got.Model != dose.NIOSH || got.DailyLimitPercent != 100 {
		t.Errorf("store error should yield defaults, got %+v", got)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	r := &fakeSettings{values: map[string]string{
		SettingExchangeModel:     "osha",
		SettingThresholds:        "100, 50,50,80",
		SettingCooldown:          "30m",
		SettingInactivityTimeout: "2m",
		SettingDailyLimitPercent: "85.5",
	}}
	got := LoadSettings(context.Background(), r, discardLogger())

	if got.Model != dose.OSHA {
		t.Errorf("Model = %v, want osha", got.Model)
	}
	if len(got.Thresholds) != 3 || got.Thresholds[0] != 50 || got.Thresholds[1] != 80 || got.Thresholds[2] != 100 {
		t.Errorf("Thresholds = %v, want sorted deduped [50 80 100]", got.Thresholds)
	}
	if got.Cooldown != 30*time.Minute {
		t.Errorf("Cooldown = %v, want 30m", got.Cooldown)
	}
	if got.InactivityTimeout != 2*time.Minute {
		t.Errorf("InactivityTimeout = %v, want 2m", got.InactivityTimeout)
	}
	if got.DailyLimitPercent != 85.5 {
		t.Errorf("DailyLimitPercent = %v, want 85.5", got.DailyLimitPercent)
	}
}

func TestLoadSettingsInvalidValuesKeepDefaults(t *testing.T) {
	r := &fakeSettings{values: map[string]string{
		SettingExchangeModel:     "iso9000",
		SettingThresholds:        "fifty,eighty",
		SettingCooldown:          "-1h",
		SettingInactivityTimeout: "soon",
		SettingDailyLimitPercent: "-5",
	}}
	got := LoadSettings(context.Background(), r, discardLogger())
	want := DefaultSettings()

	if got.Model != want.Model {
		t.Errorf("Model = %v, want default %v", got.Model, want.Model)
	}
	if len(got.Thresholds) != len(want.Thresholds) || got.Thresholds[0] != want.Thresholds[0] {
		t.Errorf("Thresholds = %v, want default %v", got.Thresholds, want.Thresholds)
	}
	if got.Cooldown != want.Cooldown {
		t.Errorf("Cooldown = %v, want default %v", got.Cooldown, want.Cooldown)
	}
	if got.InactivityTimeout != want.InactivityTimeout {
		t.Errorf("InactivityTimeout = %v, want default %v", got.InactivityTimeout, want.InactivityTimeout)
	}
	if got.DailyLimitPercent != want.DailyLimitPercent {
		t.Errorf("DailyLimitPercent = %v, want default %v", got.DailyLimitPercent, want.DailyLimitPercent)
	}
}

func TestSettingsMapRoundTrip(t *testing.T) {
	in := Settings{
		Model:             dose.OSHA,
		Thresholds:        []int{25, 75},
		Cooldown:          45 * time.Minute,
		InactivityTimeout: 90 * time.Second,
		DailyLimitPercent: 120,
	}
	got := LoadSettings(context.Background(), &fakeSettings{values: in.Map()}, discardLogger())

	if got.Model != in.Model || got.Cooldown != in.Cooldown || got.InactivityTimeout != in.InactivityTimeout {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
	}
	if got.DailyLimitPercent != in.DailyLimitPercent {
		t.Errorf("DailyLimitPercent = %v, want %v", got.DailyLimitPercent, in.DailyLimitPercent)
	}
	if len(got.Thresholds) != 2 || got.Thresholds[0] != 25 || got.Thresholds[1] != 75 {
		t.Errorf("Thresholds = %v, want [25 75]", got.Thresholds)
	}
}

func TestValidateSetting(t *testing.T) {
	cases := []struct {
		key     string
		value   string
		wantErr bool
	}{
		{SettingExchangeModel, "niosh", false},
		{SettingExchangeModel, "OSHA", false},
		{SettingExchangeModel, "en1999", true},
		{SettingThresholds, "50,80,100", false},
		{SettingThresholds, "0,80", true},
		{SettingThresholds, "", true},
		{SettingCooldown, "1h30m", false},
		{SettingCooldown, "0s", true},
		{SettingInactivityTimeout, "5m", false},
		{SettingInactivityTimeout, "five", true},
		{SettingDailyLimitPercent, "100", false},
		{SettingDailyLimitPercent, "NaN", true},
		{"volume", "11", true},
	}
	for _, tc := range cases {
		err := ValidateSetting(tc.key, tc.value)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateSetting(%q, %q) = %v, wantErr %v", tc.key, tc.value, err, tc.wantErr)
		}
	}
}
