// Package actuator defines the stimulator adapter surface and the bounded
// biphasic waveform configuration pushed to it.
package actuator

import "context"

// Adapter is the coordinator's view of the stimulator. Initialize failure
// prevents a session from starting; Push, Status and Stop failures are
// recoverable and only audited.
type Adapter interface {
	Initialize(ctx context.Context) error
	Push(ctx context.Context, configs []ChannelConfig) error
	Status(ctx context.Context) error
	Stop(ctx context.Context) error
}
