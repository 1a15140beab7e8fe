// Package sensor handles the byte-stream side of the sensor peer: serial
// port access, line framing and the outbound peer command protocol.
package sensor

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal transport surface the coordinator needs. Serial ports,
// pipes and test fakes all satisfy it.
type Port interface {
	io.ReadWriteCloser
}

type OpenOptions struct {
	Name string
	Baud int
	// ReadTimeout bounds each Read so the dispatch loop stays responsive
	// to shutdown. Reads return (0, nil) on timeout.
	ReadTimeout time.Duration
}

func Open(opts OpenOptions) (Port, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("port name is required")
	}
	if opts.Baud <= 0 {
		opts.Baud = 9600
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = time.Second
	}
	p, err := serial.Open(opts.Name, &serial.Mode{BaudRate: opts.Baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Name, err)
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", opts.Name, err)
	}
	return p, nil
}

// ListPorts enumerates the serial ports visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
