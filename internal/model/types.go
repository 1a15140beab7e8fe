package model

import "time"

// MaxChannels is the hardware limit on stimulation channels.
const MaxChannels = 4

// Channel identifies one stimulation output, numbered 1..MaxChannels.
type Channel int

func (c Channel) Valid() bool {
	return c >= 1 && c <= MaxChannels
}

type ParamField string

const (
	FieldAmplitude  ParamField = "amp"
	FieldFrequency  ParamField = "freq"
	FieldPulseWidth ParamField = "pw"
)

// StimParameters holds the live waveform parameters for one channel.
type StimParameters struct {
	AmplitudeMilliamps float64 `json:"amp_ma"`
	FrequencyHz        float64 `json:"freq_hz"`
	PulseWidthMicros   int     `json:"pw_us"`
}

// Bound is an inclusive safety range plus the per-keypress adjustment step.
type Bound struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// SafetyBounds are fixed at session start and immutable thereafter.
type SafetyBounds struct {
	Amplitude  Bound `json:"amplitude"`
	Frequency  Bound `json:"frequency"`
	PulseWidth Bound `json:"pulse_width"`
}

func (b SafetyBounds) For(field ParamField) Bound {
	switch field {
	case FieldAmplitude:
		return b.Amplitude
	case FieldFrequency:
		return b.Frequency
	case FieldPulseWidth:
		return b.PulseWidth
	default:
		return Bound{}
	}
}

type EventKind string

const (
	EventTriggerOn       EventKind = "trigger_on"
	EventTriggerOff      EventKind = "trigger_off"
	EventTelemetry       EventKind = "telemetry"
	EventPeripheralState EventKind = "peripheral_state"
	EventMalformed       EventKind = "malformed"
	EventGeneric         EventKind = "generic"
)

// Event is one classified sensor-peer line.
type Event struct {
	Kind EventKind
	Raw  string
	// Fields carries the comma-separated telemetry payload, empty otherwise.
	Fields []string
	At     time.Time
}

type SessionState string

const (
	SessionIdle   SessionState = "idle"
	SessionActive SessionState = "active"
)

// AuditRecord is one append-only trail entry. Params carries the parameter
// snapshot captured at emission time, nil when the source has none.
type AuditRecord struct {
	ID        string                     `json:"id"`
	SessionID string                     `json:"session_id"`
	At        time.Time                  `json:"at"`
	Source    string                     `json:"source"`
	Event     string                     `json:"event"`
	Details   string                     `json:"details,omitempty"`
	Params    map[Channel]StimParameters `json:"params,omitempty"`
}
