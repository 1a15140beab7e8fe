package tuning

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"stimctl/internal/audit"
	"stimctl/internal/model"
	"stimctl/internal/params"
)

// Controller adjusts one tunable field from operator key edges. Each
// controller runs in its own goroutine with a private inbox; controllers for
// different fields only ever meet inside the parameter store's critical
// section, never across an adjustment.
type Controller struct {
	binding  Binding
	mode     Mode
	debounce time.Duration
	release  rune

	params  *params.Store
	trail   audit.Logger
	channel func() model.Channel

	inbox chan KeyEvent

	// Owned by the controller goroutine.
	lastAdjust time.Time
	held       bool
}

type ControllerConfig struct {
	Binding    Binding
	Mode       Mode
	Debounce   time.Duration
	ReleaseKey rune
	Params     *params.Store
	Trail      audit.Logger
	// Channel returns the channel the next adjustment addresses.
	Channel func() model.Channel
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("parameter store is required")
	}
	if cfg.Trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	if cfg.Channel == nil {
		return nil, fmt.Errorf("channel selector is required")
	}
	switch cfg.Mode {
	case ModeDebounce, ModeHoldRelease:
	default:
		return nil, fmt.Errorf("unknown tuning mode %q", cfg.Mode)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ReleaseKey == 0 {
		cfg.ReleaseKey = DefaultReleaseKey
	}
	return &Controller{
		binding:  cfg.Binding,
		mode:     cfg.Mode,
		debounce: cfg.Debounce,
		release:  cfg.ReleaseKey,
		params:   cfg.Params,
		trail:    cfg.Trail,
		channel:  cfg.Channel,
		inbox:    make(chan KeyEvent, 16),
	}, nil
}

func (c *Controller) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev := <-c.inbox:
				c.handle(ctx, ev)
			case <-ctx.Done():
				// Handle anything offered before the cancellation.
				for {
					select {
					case ev := <-c.inbox:
						c.handle(ctx, ev)
					default:
						return
					}
				}
			}
		}
	}()
}

// offer hands a key event to the controller without blocking the router. A
// full inbox drops the edge; key presses are not queued up work.
func (c *Controller) offer(ev KeyEvent) {
	select {
	case c.inbox <- ev:
	default:
	}
}

func (c *Controller) handle(ctx context.Context, ev KeyEvent) {
	switch ev.Key {
	case c.release:
		if c.mode == ModeHoldRelease {
			c.held = false
		}
	case c.binding.IncreaseKey:
		c.adjust(ctx, ev, 1)
	case c.binding.DecreaseKey:
		c.adjust(ctx, ev, -1)
	}
}

func (c *Controller) adjust(ctx context.Context, ev KeyEvent, sign float64) {
	switch c.mode {
	case ModeDebounce:
		if !c.lastAdjust.IsZero() && ev.At.Sub(c.lastAdjust) < c.debounce {
			return
		}
	case ModeHoldRelease:
		if c.held {
			return
		}
	}

	ch := c.channel()
	step := c.params.Bounds().For(c.binding.Field).Step
	value, err := c.params.Adjust(ch, c.binding.Field, sign*step)
	if err != nil {
		log.Printf("tuning: %s adjust on channel %d failed: %v", c.binding.Field, ch, err)
		return
	}
	c.lastAdjust = ev.At
	c.held = true

	direction := "UP"
	if sign < 0 {
		direction = "DOWN"
	}
	c.trail.Log(ctx, "Keyboard",
		fieldEventName(c.binding.Field)+" "+direction,
		fmt.Sprintf("ch=%d %s", ch, formatValue(c.binding.Field, value)))
}

func fieldEventName(field model.ParamField) string {
	switch field {
	case model.FieldAmplitude:
		return "AMP"
	case model.FieldFrequency:
		return "FREQ"
	case model.FieldPulseWidth:
		return "PW"
	}
	return string(field)
}

func formatValue(field model.ParamField, value float64) string {
	switch field {
	case model.FieldAmplitude:
		return strconv.FormatFloat(value, 'f', -1, 64) + " mA"
	case model.FieldFrequency:
		return strconv.FormatFloat(value, 'f', -1, 64) + " Hz"
	case model.FieldPulseWidth:
		return strconv.FormatFloat(value, 'f', -1, 64) + " us"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
