package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stimctl/internal/actuator"
	"stimctl/internal/audit"
	"stimctl/internal/params"
)

// ErrAlreadyRunning is returned by Start while the loop is running.
var ErrAlreadyRunning = errors.New("actuator loop already running")

const (
	DefaultTick      = 20 * time.Millisecond
	DefaultKeepAlive = 1500 * time.Millisecond
)

type LoopConfig struct {
	Params  *params.Store
	Adapter actuator.Adapter
	Trail   audit.Logger
	// Tick is the push period. Zero means DefaultTick.
	Tick time.Duration
	// KeepAlive is the status query period. Zero disables keep-alives;
	// negative means DefaultKeepAlive.
	KeepAlive time.Duration
}

// Loop pushes the current parameter snapshot to the actuator on every tick
// while running. At most one instance runs at a time. Push and status
// failures are audited and the loop keeps going; the tick period is also the
// floor between retries.
type Loop struct {
	params    *params.Store
	adapter   actuator.Adapter
	trail     audit.Logger
	tick      time.Duration
	keepAlive time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Params == nil {
		return nil, fmt.Errorf("parameter store is required")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("actuator adapter is required")
	}
	if cfg.Trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.KeepAlive < 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Loop{
		params:    cfg.Params,
		adapter:   cfg.Adapter,
		trail:     cfg.Trail,
		tick:      cfg.Tick,
		keepAlive: cfg.KeepAlive,
	}, nil
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}

// Start launches the periodic push goroutine. A second Start while running is
// rejected with ErrAlreadyRunning and has no effect.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.running = true
	l.cancel = cancel
	l.done = done
	go l.run(ctx, done)
	return nil
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	lastStatus := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.PushOnce(ctx)
			if l.keepAlive > 0 && time.Since(lastStatus) >= l.keepAlive {
				if err := l.adapter.Status(ctx); err != nil {
					l.trail.Log(ctx, "Actuator", "StatusError", err.Error())
				}
				lastStatus = time.Now()
			}
		}
	}
}

// PushOnce builds the waveform for the current snapshot and pushes it. A push
// failure is audited, never propagated.
func (l *Loop) PushOnce(ctx context.Context) {
	configs := actuator.BuildConfigs(l.params.SnapshotAll())
	if err := l.adapter.Push(ctx, configs); err != nil {
		l.trail.Log(ctx, "Actuator", "UpdateError", err.Error())
	}
}

// Stop signals the loop to exit, waits for the current iteration to finish,
// then issues the adapter stop command. That order keeps a late periodic push
// from landing after the device was told to stop. Stop is idempotent and safe
// to call from any goroutine.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	<-done
	if err := l.adapter.Stop(ctx); err != nil {
		l.trail.Log(ctx, "Actuator", "StopError", err.Error())
		return fmt.Errorf("adapter stop: %w", err)
	}
	return nil
}
