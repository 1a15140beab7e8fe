package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stimctl/internal/model"
	"stimctl/internal/tuning"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels != 1 {
		t.Fatalf("channels=%d", cfg.Channels)
	}
	if cfg.Tick != 20*time.Millisecond {
		t.Fatalf("tick=%v", cfg.Tick)
	}
	if cfg.KeepAlive != 1500*time.Millisecond {
		t.Fatalf("keepalive=%v", cfg.KeepAlive)
	}
	if cfg.EdgeMode() != tuning.ModeDebounce {
		t.Fatalf("mode=%v", cfg.EdgeMode())
	}
	if cfg.DefaultAmplitude != 10 || cfg.DefaultFrequency != 35 || cfg.DefaultPulseWidth != 300 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	bounds := cfg.SafetyBounds()
	if bounds.Amplitude.Max != 120 || bounds.Frequency.Max != 2000 || bounds.PulseWidth.Max != 10000 {
		t.Fatalf("unexpected bounds: %+v", bounds)
	}
}

func TestLoadProfile(t *testing.T) {
	cfg, err := Load("", "p24")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels != 2 {
		t.Fatalf("channels=%d", cfg.Channels)
	}
	if cfg.EdgeMode() != tuning.ModeHoldRelease {
		t.Fatalf("mode=%v", cfg.EdgeMode())
	}
	if cfg.KeepAlive != 0 {
		t.Fatalf("keepalive=%v", cfg.KeepAlive)
	}
	if cfg.AmplitudeStep != 1 {
		t.Fatalf("amplitude step=%v", cfg.AmplitudeStep)
	}

	defaults := cfg.ChannelDefaults()
	if len(defaults) != 2 {
		t.Fatalf("expected two channels, got=%v", defaults)
	}
	// Each channel keeps its own defaults triple.
	one, two := defaults[model.Channel(1)], defaults[model.Channel(2)]
	if one.AmplitudeMilliamps != 5 || one.PulseWidthMicros != 275 {
		t.Fatalf("unexpected channel 1 defaults: %+v", one)
	}
	if two.AmplitudeMilliamps != 5 || two.PulseWidthMicros != 300 {
		t.Fatalf("unexpected channel 2 defaults: %+v", two)
	}
}

func TestChannelDefaultOverrides(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Channels = 3
	cfg.PerChannel = map[string]ChannelOverride{
		"2": {Amplitude: 8, PulseWidth: 150},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	defaults := cfg.ChannelDefaults()
	if got := defaults[model.Channel(1)]; got.AmplitudeMilliamps != 10 || got.PulseWidthMicros != 300 {
		t.Fatalf("channel 1 should keep the global triple, got=%+v", got)
	}
	got := defaults[model.Channel(2)]
	if got.AmplitudeMilliamps != 8 || got.PulseWidthMicros != 150 {
		t.Fatalf("channel 2 override not applied: %+v", got)
	}
	// Fields the override leaves zero keep the global value.
	if got.FrequencyHz != 35 {
		t.Fatalf("channel 2 frequency should stay global, got=%v", got.FrequencyHz)
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	if _, err := Load("", "bench9000"); err == nil {
		t.Fatal("expected unknown profile to fail")
	}
}

func TestLoadFileOverridesProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stimctl.yaml")
	yaml := "channels: 3\ntick: 40ms\nstore: sqlite\ndb_path: " + filepath.Join(dir, "audit.db") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, "hti")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels != 3 {
		t.Fatalf("channels=%d", cfg.Channels)
	}
	if cfg.Tick != 40*time.Millisecond {
		t.Fatalf("tick=%v", cfg.Tick)
	}
	if cfg.StoreKind != "sqlite" {
		t.Fatalf("store=%q", cfg.StoreKind)
	}
	// Profile values the file does not touch still apply.
	if cfg.EdgeMode() != tuning.ModeDebounce {
		t.Fatalf("mode=%v", cfg.EdgeMode())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("", "")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too many channels", func(c *Config) { c.Channels = model.MaxChannels + 1 }},
		{"inverted bounds", func(c *Config) { c.AmplitudeMin, c.AmplitudeMax = 120, 0.1 }},
		{"zero step", func(c *Config) { c.FrequencyStep = 0 }},
		{"zero tick", func(c *Config) { c.Tick = 0 }},
		{"bad mode", func(c *Config) { c.Mode = "toggle" }},
		{"bad store", func(c *Config) { c.StoreKind = "parquet" }},
		{"multi-rune key", func(c *Config) { c.KeyAmpUp = "up" }},
		{"duplicate keys", func(c *Config) { c.KeyFreqUp = c.KeyAmpUp }},
		{"missing db path", func(c *Config) { c.StoreKind, c.DBPath = "sqlite", "" }},
		{"override for unconfigured channel", func(c *Config) {
			c.PerChannel = map[string]ChannelOverride{"3": {Amplitude: 5}}
		}},
		{"non-numeric override key", func(c *Config) {
			c.PerChannel = map[string]ChannelOverride{"left": {Amplitude: 5}}
		}},
		{"negative override", func(c *Config) {
			c.PerChannel = map[string]ChannelOverride{"1": {Amplitude: -1}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestTuningBindings(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bindings := cfg.TuningBindings()
	if len(bindings) != 3 {
		t.Fatalf("expected three bindings, got=%v", bindings)
	}
	if bindings[0].Field != model.FieldAmplitude || bindings[0].IncreaseKey != 'w' || bindings[0].DecreaseKey != 'q' {
		t.Fatalf("unexpected amplitude binding: %+v", bindings[0])
	}
	if cfg.ReleaseRune() != 'r' {
		t.Fatalf("release=%q", cfg.ReleaseRune())
	}
}
