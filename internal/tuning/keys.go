package tuning

import (
	"context"
	"time"

	"stimctl/internal/model"
)

// KeyEvent is one operator key press edge.
type KeyEvent struct {
	Key rune
	At  time.Time
}

// KeySource delivers key press edges. Next blocks until a key arrives, the
// source is exhausted, or ctx is done.
type KeySource interface {
	Next(ctx context.Context) (KeyEvent, error)
}

// Mode selects the press-edge convention. A deployment uses exactly one.
type Mode string

const (
	// ModeDebounce registers at most one adjustment per debounce interval.
	ModeDebounce Mode = "debounce"
	// ModeHoldRelease registers one adjustment per press and ignores the
	// bound keys until the release key is seen.
	ModeHoldRelease Mode = "hold-release"
)

// Binding maps an increase/decrease key pair to one tunable field.
type Binding struct {
	Field       model.ParamField
	IncreaseKey rune
	DecreaseKey rune
}

// DefaultBindings is the stock keymap: w/q amplitude, s/a frequency,
// x/z pulse width.
func DefaultBindings() []Binding {
	return []Binding{
		{Field: model.FieldAmplitude, IncreaseKey: 'w', DecreaseKey: 'q'},
		{Field: model.FieldFrequency, IncreaseKey: 's', DecreaseKey: 'a'},
		{Field: model.FieldPulseWidth, IncreaseKey: 'x', DecreaseKey: 'z'},
	}
}

// DefaultReleaseKey acknowledges a held adjustment in ModeHoldRelease.
const DefaultReleaseKey = 'r'

// DefaultDebounce is the adjustment interval for ModeDebounce.
const DefaultDebounce = 200 * time.Millisecond
