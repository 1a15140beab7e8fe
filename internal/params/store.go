package params

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"stimctl/internal/model"
)

// Store holds the live stimulation parameters for every configured channel.
// Every mutation goes through Adjust, which clamps into the safety bounds, so
// readers can never observe an out-of-range or torn value.
type Store struct {
	bounds model.SafetyBounds

	mu       sync.RWMutex
	channels map[model.Channel]model.StimParameters
}

func NewStore(bounds model.SafetyBounds, defaults map[model.Channel]model.StimParameters) (*Store, error) {
	if len(defaults) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	if len(defaults) > model.MaxChannels {
		return nil, fmt.Errorf("too many channels: got=%d max=%d", len(defaults), model.MaxChannels)
	}
	channels := make(map[model.Channel]model.StimParameters, len(defaults))
	for ch, p := range defaults {
		if !ch.Valid() {
			return nil, fmt.Errorf("invalid channel: %d", ch)
		}
		channels[ch] = clampParameters(bounds, p)
	}
	return &Store{bounds: bounds, channels: channels}, nil
}

func (s *Store) Bounds() model.SafetyBounds {
	return s.bounds
}

// Channels returns the configured channel identifiers in ascending order.
func (s *Store) Channels() []model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Channel, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns an internally consistent copy of one channel's parameters.
func (s *Store) Snapshot(ch model.Channel) (model.StimParameters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.channels[ch]
	return p, ok
}

// SnapshotAll returns a consistent copy of every channel's parameters.
func (s *Store) SnapshotAll() map[model.Channel]model.StimParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.Channel]model.StimParameters, len(s.channels))
	for ch, p := range s.channels {
		out[ch] = p
	}
	return out
}

// Adjust applies delta to one field and clamps the result into the field's
// safety bound. Out-of-range deltas clamp silently: the bound is the safety
// mechanism. Returns the value now in effect.
func (s *Store) Adjust(ch model.Channel, field model.ParamField, delta float64) (float64, error) {
	bound := s.bounds.For(field)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.channels[ch]
	if !ok {
		return 0, fmt.Errorf("unknown channel: %d", ch)
	}
	var next float64
	switch field {
	case model.FieldAmplitude:
		next = clamp(p.AmplitudeMilliamps+delta, bound)
		p.AmplitudeMilliamps = next
	case model.FieldFrequency:
		next = clamp(p.FrequencyHz+delta, bound)
		p.FrequencyHz = next
	case model.FieldPulseWidth:
		next = clamp(float64(p.PulseWidthMicros)+delta, bound)
		p.PulseWidthMicros = int(math.Round(next))
		next = float64(p.PulseWidthMicros)
	default:
		return 0, fmt.Errorf("unknown parameter field: %s", field)
	}
	s.channels[ch] = p
	return next, nil
}

func clamp(v float64, b model.Bound) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

func clampParameters(bounds model.SafetyBounds, p model.StimParameters) model.StimParameters {
	p.AmplitudeMilliamps = clamp(p.AmplitudeMilliamps, bounds.Amplitude)
	p.FrequencyHz = clamp(p.FrequencyHz, bounds.Frequency)
	p.PulseWidthMicros = int(math.Round(clamp(float64(p.PulseWidthMicros), bounds.PulseWidth)))
	return p
}
