package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stimctl/internal/audit"
	"stimctl/internal/event"
	"stimctl/internal/sensor"
)

// Dispatcher drives the read-classify-dispatch cycle for one sensor
// transport. It owns session state transitions through the coordinator;
// nothing else feeds the coordinator trigger events.
type Dispatcher struct {
	reader *sensor.LineReader
	coord  *Coordinator
	trail  audit.Logger
	now    func() time.Time
}

func NewDispatcher(reader *sensor.LineReader, coord *Coordinator, trail audit.Logger) *Dispatcher {
	return &Dispatcher{reader: reader, coord: coord, trail: trail, now: time.Now}
}

// Run consumes sensor lines until ctx ends or the transport fails. A
// transport failure is audited and returned so a supervisor can restart the
// cycle.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		line, err := d.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			d.trail.Log(ctx, "System", "SensorError", err.Error())
			return fmt.Errorf("sensor read: %w", err)
		}
		ev, ok := event.Classify(line, d.now())
		if !ok {
			continue
		}
		d.coord.HandleEvent(ctx, ev)
	}
}
