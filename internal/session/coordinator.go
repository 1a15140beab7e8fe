package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"stimctl/internal/actuator"
	"stimctl/internal/audit"
	"stimctl/internal/model"
	"stimctl/internal/sensor"
)

type CoordinatorConfig struct {
	Loop  *Loop
	Trail audit.Logger
	// Adapter receives the unconditional stop during Shutdown. Usually the
	// same adapter the loop pushes to.
	Adapter actuator.Adapter
	// Commander addresses the sensor peer; nil when the transport has no
	// command channel.
	Commander *sensor.Commander
	// ImmediatePush issues one synchronous push right after a session starts
	// instead of waiting for the first tick.
	ImmediatePush bool
}

// Coordinator owns the session state machine and routes classified events.
type Coordinator struct {
	loop          *Loop
	trail         audit.Logger
	adapter       actuator.Adapter
	commander     *sensor.Commander
	immediatePush bool

	mu    sync.Mutex
	state model.SessionState
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Loop == nil {
		return nil, fmt.Errorf("actuator loop is required")
	}
	if cfg.Trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	return &Coordinator{
		loop:          cfg.Loop,
		trail:         cfg.Trail,
		adapter:       cfg.Adapter,
		commander:     cfg.Commander,
		immediatePush: cfg.ImmediatePush,
		state:         model.SessionIdle,
	}, nil
}

func (c *Coordinator) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// HandleEvent applies one classified event to the session state machine.
func (c *Coordinator) HandleEvent(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventTriggerOn:
		c.triggerOn(ctx)
	case model.EventTriggerOff:
		c.triggerOff(ctx)
	case model.EventTelemetry:
		c.trail.Log(ctx, "IMU", "Position", strings.Join(ev.Fields, ","))
	case model.EventPeripheralState:
		c.trail.Log(ctx, "Carbonhand", "State", ev.Raw)
	case model.EventMalformed:
		c.trail.Log(ctx, "Arduino", "Malformed", ev.Raw)
	case model.EventGeneric:
		c.trail.Log(ctx, "Arduino", "Message", ev.Raw)
	}
}

func (c *Coordinator) triggerOn(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.SessionActive {
		c.trail.Log(ctx, "Arduino", "FES ON", "already active, no state change")
		return
	}
	if err := c.loop.Start(); err != nil {
		c.trail.Log(ctx, "System", "StartError", err.Error())
		return
	}
	c.state = model.SessionActive
	if c.immediatePush {
		c.loop.PushOnce(ctx)
	}
	c.trail.Log(ctx, "Arduino", "FES ON", "Stimulation STARTED")
}

func (c *Coordinator) triggerOff(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == model.SessionIdle {
		c.trail.Log(ctx, "Arduino", "FES OFF", "already idle, no state change")
		return
	}
	_ = c.loop.Stop(ctx)
	c.state = model.SessionIdle
	c.trail.Log(ctx, "Arduino", "FES OFF", "Stimulation STOPPED")
}

// Shutdown drives the process-level teardown: stop the loop, send the
// explicit off commands to every downstream device, then log completion.
// Closing transports and flushing the trail is the caller's job, after this
// returns.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.loop.Stop(ctx)
	c.state = model.SessionIdle

	if c.adapter != nil {
		if err := c.adapter.Stop(ctx); err != nil {
			c.trail.Log(ctx, "Actuator", "StopError", err.Error())
		}
	}
	if c.commander != nil {
		if err := c.commander.AllOff(); err != nil {
			c.trail.Log(ctx, "Carbonhand", "OffError", err.Error())
		}
	}
	c.trail.Log(ctx, "System", "Shutdown", "complete")
}
