package actuator

import (
	"sort"

	"stimctl/internal/model"
)

// Point is one waveform segment: hold AmplitudeMilliamps for DurationMicros.
type Point struct {
	DurationMicros     int
	AmplitudeMilliamps float64
}

// ChannelConfig describes one channel's pulse train for a single update.
type ChannelConfig struct {
	Channel     model.Channel
	Enabled     bool
	FrequencyHz float64
	Points      []Point
}

// NetCharge sums amplitude x duration over the pulse. A symmetric biphasic
// pulse nets to zero.
func (c ChannelConfig) NetCharge() float64 {
	var sum float64
	for _, p := range c.Points {
		sum += p.AmplitudeMilliamps * float64(p.DurationMicros)
	}
	return sum
}

// BuildChannelConfig produces the three-segment symmetric biphasic pulse for
// one channel: positive phase, zero phase, matched negative phase, each one
// half pulse width long.
func BuildChannelConfig(ch model.Channel, p model.StimParameters) ChannelConfig {
	half := p.PulseWidthMicros / 2
	amp := p.AmplitudeMilliamps
	return ChannelConfig{
		Channel:     ch,
		Enabled:     true,
		FrequencyHz: p.FrequencyHz,
		Points: []Point{
			{DurationMicros: half, AmplitudeMilliamps: amp},
			{DurationMicros: half, AmplitudeMilliamps: 0},
			{DurationMicros: half, AmplitudeMilliamps: -amp},
		},
	}
}

// BuildConfigs builds one ChannelConfig per channel in ascending channel order.
func BuildConfigs(snapshot map[model.Channel]model.StimParameters) []ChannelConfig {
	channels := make([]model.Channel, 0, len(snapshot))
	for ch := range snapshot {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	out := make([]ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		out = append(out, BuildChannelConfig(ch, snapshot[ch]))
	}
	return out
}
