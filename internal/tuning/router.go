package tuning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"stimctl/internal/audit"
	"stimctl/internal/model"
	"stimctl/internal/params"
)

// Router fans operator key edges out to the per-field controllers. With more
// than one channel configured the digit keys address the channel the
// following adjustments apply to; single-channel deployments have no
// selector keys.
type Router struct {
	controllers []*Controller
	channels    []model.Channel
	trail       audit.Logger

	selected atomic.Int32

	wg sync.WaitGroup
}

type RouterConfig struct {
	Params     *params.Store
	Trail      audit.Logger
	Bindings   []Binding
	Mode       Mode
	Debounce   time.Duration
	ReleaseKey rune
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("parameter store is required")
	}
	channels := cfg.Params.Channels()
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	bindings := cfg.Bindings
	if len(bindings) == 0 {
		bindings = DefaultBindings()
	}

	r := &Router{channels: channels, trail: cfg.Trail}
	r.selected.Store(int32(channels[0]))
	for _, b := range bindings {
		ctl, err := NewController(ControllerConfig{
			Binding:    b,
			Mode:       cfg.Mode,
			Debounce:   cfg.Debounce,
			ReleaseKey: cfg.ReleaseKey,
			Params:     cfg.Params,
			Trail:      cfg.Trail,
			Channel:    r.selectedChannel,
		})
		if err != nil {
			return nil, fmt.Errorf("controller for %s: %w", b.Field, err)
		}
		r.controllers = append(r.controllers, ctl)
	}
	return r, nil
}

func (r *Router) selectedChannel() model.Channel {
	return model.Channel(r.selected.Load())
}

// Run consumes the key source until it is exhausted or ctx ends, starting the
// controllers for the duration of the call.
func (r *Router) Run(ctx context.Context, source KeySource) error {
	ctx, cancel := context.WithCancel(ctx)
	// The controllers park on this context, so it must be cancelled before
	// waiting for them.
	defer func() {
		cancel()
		r.wg.Wait()
	}()

	for _, c := range r.controllers {
		c.start(ctx, &r.wg)
	}

	for {
		ev, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("key source: %w", err)
		}
		r.route(ctx, ev)
	}
}

func (r *Router) route(ctx context.Context, ev KeyEvent) {
	if ch, ok := r.channelFor(ev.Key); ok {
		r.selected.Store(int32(ch))
		r.trail.Log(ctx, "Keyboard", "CHANNEL SELECT", fmt.Sprintf("ch=%d", ch))
		return
	}
	for _, c := range r.controllers {
		c.offer(ev)
	}
}

func (r *Router) channelFor(key rune) (model.Channel, bool) {
	if len(r.channels) < 2 {
		return 0, false
	}
	if key < '1' || key > '9' {
		return 0, false
	}
	ch := model.Channel(key - '0')
	for _, have := range r.channels {
		if have == ch {
			return ch, true
		}
	}
	return 0, false
}
