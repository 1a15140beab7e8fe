package actuator

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// SerialAdapter drives a stimulator over a line-oriented serial link. One
// command per line; channel updates serialize the pulse segments as
// duration:amplitude pairs.
type SerialAdapter struct {
	mu          sync.Mutex
	port        io.ReadWriteCloser
	initialized bool
}

func NewSerialAdapter(port io.ReadWriteCloser) *SerialAdapter {
	return &SerialAdapter{port: port}
}

func (a *SerialAdapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	// Stop any ongoing stimulation before configuring, matching the device
	// init handshake.
	if err := a.writeLine("STOP"); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := a.writeLine("INIT"); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	a.initialized = true
	return nil
}

func (a *SerialAdapter) Push(_ context.Context, configs []ChannelConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("adapter is not initialized")
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := a.writeLine(encodeUpdate(cfg)); err != nil {
			return fmt.Errorf("push channel %d: %w", cfg.Channel, err)
		}
	}
	return nil
}

func (a *SerialAdapter) Status(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("adapter is not initialized")
	}
	return a.writeLine("STATUS")
}

func (a *SerialAdapter) Stop(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.writeLine("STOP")
}

func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.port.Close()
}

func (a *SerialAdapter) writeLine(line string) error {
	_, err := a.port.Write([]byte(line + "\n"))
	return err
}

func encodeUpdate(cfg ChannelConfig) string {
	segments := make([]string, 0, len(cfg.Points))
	for _, p := range cfg.Points {
		segments = append(segments,
			strconv.Itoa(p.DurationMicros)+":"+strconv.FormatFloat(p.AmplitudeMilliamps, 'f', -1, 64))
	}
	return fmt.Sprintf("UPDATE %d %s %s",
		cfg.Channel,
		strconv.FormatFloat(cfg.FrequencyHz, 'f', -1, 64),
		strings.Join(segments, ","))
}
