package actuator

import "context"

// NopAdapter accepts every call and drives nothing. Used for dry runs where
// the operator wants to exercise sensor wiring and logging without a device.
type NopAdapter struct{}

func (NopAdapter) Initialize(context.Context) error            { return nil }
func (NopAdapter) Push(context.Context, []ChannelConfig) error { return nil }
func (NopAdapter) Status(context.Context) error                { return nil }
func (NopAdapter) Stop(context.Context) error                  { return nil }
