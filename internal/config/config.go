// Package config loads coordinator configuration from an optional YAML file,
// environment overrides and built-in profiles using Viper.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"stimctl/internal/model"
	"stimctl/internal/tuning"
)

type Config struct {
	// SensorPort is the sensor transport device, or "-" for stdin.
	SensorPort  string        `mapstructure:"sensor_port"`
	SensorBaud  int           `mapstructure:"sensor_baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// ActuatorPort is the stimulator device. Empty means the no-op adapter.
	ActuatorPort string `mapstructure:"actuator_port"`
	ActuatorBaud int    `mapstructure:"actuator_baud"`

	Channels          int     `mapstructure:"channels"`
	DefaultAmplitude  float64 `mapstructure:"default_amplitude"`
	DefaultFrequency  float64 `mapstructure:"default_frequency"`
	DefaultPulseWidth int     `mapstructure:"default_pulse_width"`

	// PerChannel overrides the global default triple for individual
	// channels, keyed by channel number.
	PerChannel map[string]ChannelOverride `mapstructure:"channel_defaults"`

	AmplitudeMin  float64 `mapstructure:"amplitude_min"`
	AmplitudeMax  float64 `mapstructure:"amplitude_max"`
	AmplitudeStep float64 `mapstructure:"amplitude_step"`

	FrequencyMin  float64 `mapstructure:"frequency_min"`
	FrequencyMax  float64 `mapstructure:"frequency_max"`
	FrequencyStep float64 `mapstructure:"frequency_step"`

	PulseWidthMin  float64 `mapstructure:"pulse_width_min"`
	PulseWidthMax  float64 `mapstructure:"pulse_width_max"`
	PulseWidthStep float64 `mapstructure:"pulse_width_step"`

	Tick      time.Duration `mapstructure:"tick"`
	KeepAlive time.Duration `mapstructure:"keepalive"`

	Mode       string        `mapstructure:"tuning_mode"`
	Debounce   time.Duration `mapstructure:"debounce"`
	ReleaseKey string        `mapstructure:"release_key"`

	KeyAmpUp    string `mapstructure:"key_amp_up"`
	KeyAmpDown  string `mapstructure:"key_amp_down"`
	KeyFreqUp   string `mapstructure:"key_freq_up"`
	KeyFreqDown string `mapstructure:"key_freq_down"`
	KeyPWUp     string `mapstructure:"key_pw_up"`
	KeyPWDown   string `mapstructure:"key_pw_down"`

	// ImmediatePush issues one synchronous push when a session starts.
	ImmediatePush bool `mapstructure:"immediate_push"`

	// StoreKind selects the audit backend: memory, sqlite or csv.
	StoreKind string `mapstructure:"store"`
	DBPath    string `mapstructure:"db_path"`
	CSVDir    string `mapstructure:"csv_dir"`
}

// ChannelOverride replaces the global default parameters for one channel.
// Zero fields keep the global value.
type ChannelOverride struct {
	Amplitude  float64 `mapstructure:"amplitude"`
	Frequency  float64 `mapstructure:"frequency"`
	PulseWidth int     `mapstructure:"pulse_width"`
}

// Profiles are built-in default sets matching the two deployment styles: the
// single-channel debounce rig and the multi-channel hold-release rig.
var profiles = map[string]map[string]any{
	"hti": {
		"channels":    1,
		"tuning_mode": string(tuning.ModeDebounce),
		"keepalive":   "1.5s",
	},
	"p24": {
		"channels":       2,
		"tuning_mode":    string(tuning.ModeHoldRelease),
		"keepalive":      "0s",
		"amplitude_step": 1.0,
		"channel_defaults": map[string]any{
			"1": map[string]any{"amplitude": 5.0, "frequency": 35.0, "pulse_width": 275},
			"2": map[string]any{"amplitude": 5.0, "frequency": 35.0, "pulse_width": 300},
		},
	},
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	return []string{"hti", "p24"}
}

// Load builds the configuration from defaults, an optional profile, an
// optional YAML file and STIMCTL_* environment overrides, in rising
// precedence.
func Load(path, profile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("sensor_port", "")
	v.SetDefault("sensor_baud", 9600)
	v.SetDefault("read_timeout", "1s")
	v.SetDefault("actuator_port", "")
	v.SetDefault("actuator_baud", 115200)
	v.SetDefault("channels", 1)
	v.SetDefault("default_amplitude", 10.0)
	v.SetDefault("default_frequency", 35.0)
	v.SetDefault("default_pulse_width", 300)
	v.SetDefault("amplitude_min", 0.1)
	v.SetDefault("amplitude_max", 120.0)
	v.SetDefault("amplitude_step", 0.5)
	v.SetDefault("frequency_min", 1.0)
	v.SetDefault("frequency_max", 2000.0)
	v.SetDefault("frequency_step", 5.0)
	v.SetDefault("pulse_width_min", 10.0)
	v.SetDefault("pulse_width_max", 10000.0)
	v.SetDefault("pulse_width_step", 10.0)
	v.SetDefault("tick", "20ms")
	v.SetDefault("keepalive", "1.5s")
	v.SetDefault("tuning_mode", string(tuning.ModeDebounce))
	v.SetDefault("debounce", "200ms")
	v.SetDefault("release_key", "r")
	v.SetDefault("key_amp_up", "w")
	v.SetDefault("key_amp_down", "q")
	v.SetDefault("key_freq_up", "s")
	v.SetDefault("key_freq_down", "a")
	v.SetDefault("key_pw_up", "x")
	v.SetDefault("key_pw_down", "z")
	v.SetDefault("immediate_push", true)
	v.SetDefault("store", "csv")
	v.SetDefault("db_path", "stimctl.db")
	v.SetDefault("csv_dir", "logs")

	if profile != "" {
		preset, ok := profiles[profile]
		if !ok {
			return nil, fmt.Errorf("unknown profile %q", profile)
		}
		for key, value := range preset {
			v.SetDefault(key, value)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("STIMCTL")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Channels < 1 || c.Channels > model.MaxChannels {
		return fmt.Errorf("channels must be 1..%d, got %d", model.MaxChannels, c.Channels)
	}
	bounds := []struct {
		name           string
		min, max, step float64
	}{
		{"amplitude", c.AmplitudeMin, c.AmplitudeMax, c.AmplitudeStep},
		{"frequency", c.FrequencyMin, c.FrequencyMax, c.FrequencyStep},
		{"pulse_width", c.PulseWidthMin, c.PulseWidthMax, c.PulseWidthStep},
	}
	for _, b := range bounds {
		if b.min >= b.max {
			return fmt.Errorf("%s bounds invalid: min=%v max=%v", b.name, b.min, b.max)
		}
		if b.step <= 0 {
			return fmt.Errorf("%s step must be > 0, got %v", b.name, b.step)
		}
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be > 0, got %v", c.Tick)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keepalive must be >= 0, got %v", c.KeepAlive)
	}
	switch tuning.Mode(c.Mode) {
	case tuning.ModeDebounce, tuning.ModeHoldRelease:
	default:
		return fmt.Errorf("unknown tuning mode %q", c.Mode)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be > 0, got %v", c.Debounce)
	}
	switch c.StoreKind {
	case "memory", "sqlite", "csv":
	default:
		return fmt.Errorf("unknown audit store %q", c.StoreKind)
	}
	if c.StoreKind == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("db_path is required for the sqlite store")
	}
	if c.StoreKind == "csv" && c.CSVDir == "" {
		return fmt.Errorf("csv_dir is required for the csv store")
	}
	for key, ov := range c.PerChannel {
		ch, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("channel_defaults key %q is not a channel number", key)
		}
		if ch < 1 || ch > c.Channels {
			return fmt.Errorf("channel_defaults key %d outside configured channels 1..%d", ch, c.Channels)
		}
		if ov.Amplitude < 0 || ov.Frequency < 0 || ov.PulseWidth < 0 {
			return fmt.Errorf("channel_defaults for channel %d must be non-negative", ch)
		}
	}
	keys := map[string]string{
		"key_amp_up":    c.KeyAmpUp,
		"key_amp_down":  c.KeyAmpDown,
		"key_freq_up":   c.KeyFreqUp,
		"key_freq_down": c.KeyFreqDown,
		"key_pw_up":     c.KeyPWUp,
		"key_pw_down":   c.KeyPWDown,
		"release_key":   c.ReleaseKey,
	}
	seen := make(map[string]string, len(keys))
	for name, key := range keys {
		if len([]rune(key)) != 1 {
			return fmt.Errorf("%s must be a single key, got %q", name, key)
		}
		if other, dup := seen[key]; dup {
			return fmt.Errorf("%s and %s are both bound to %q", other, name, key)
		}
		seen[key] = name
	}
	return nil
}

// SafetyBounds assembles the clamp table for the parameter store.
func (c *Config) SafetyBounds() model.SafetyBounds {
	return model.SafetyBounds{
		Amplitude:  model.Bound{Min: c.AmplitudeMin, Max: c.AmplitudeMax, Step: c.AmplitudeStep},
		Frequency:  model.Bound{Min: c.FrequencyMin, Max: c.FrequencyMax, Step: c.FrequencyStep},
		PulseWidth: model.Bound{Min: c.PulseWidthMin, Max: c.PulseWidthMax, Step: c.PulseWidthStep},
	}
}

// ChannelDefaults builds the startup parameters for channels 1..Channels,
// applying any per-channel overrides on top of the global triple.
func (c *Config) ChannelDefaults() map[model.Channel]model.StimParameters {
	defaults := make(map[model.Channel]model.StimParameters, c.Channels)
	for ch := 1; ch <= c.Channels; ch++ {
		p := model.StimParameters{
			AmplitudeMilliamps: c.DefaultAmplitude,
			FrequencyHz:        c.DefaultFrequency,
			PulseWidthMicros:   c.DefaultPulseWidth,
		}
		if ov, ok := c.PerChannel[strconv.Itoa(ch)]; ok {
			if ov.Amplitude > 0 {
				p.AmplitudeMilliamps = ov.Amplitude
			}
			if ov.Frequency > 0 {
				p.FrequencyHz = ov.Frequency
			}
			if ov.PulseWidth > 0 {
				p.PulseWidthMicros = ov.PulseWidth
			}
		}
		defaults[model.Channel(ch)] = p
	}
	return defaults
}

// TuningBindings maps the configured keys onto the tunable fields.
func (c *Config) TuningBindings() []tuning.Binding {
	return []tuning.Binding{
		{Field: model.FieldAmplitude, IncreaseKey: firstRune(c.KeyAmpUp), DecreaseKey: firstRune(c.KeyAmpDown)},
		{Field: model.FieldFrequency, IncreaseKey: firstRune(c.KeyFreqUp), DecreaseKey: firstRune(c.KeyFreqDown)},
		{Field: model.FieldPulseWidth, IncreaseKey: firstRune(c.KeyPWUp), DecreaseKey: firstRune(c.KeyPWDown)},
	}
}

func (c *Config) EdgeMode() tuning.Mode {
	return tuning.Mode(c.Mode)
}

func (c *Config) ReleaseRune() rune {
	return firstRune(c.ReleaseKey)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
