package sensor

import (
	"fmt"
	"io"
	"sync"
)

// Peer command lines. The peer tolerates commands for a state it is already
// in, so every command is safe to repeat.
const (
	cmdRun           = "RUN"
	cmdPause         = "PAUSE"
	cmdTriggerOff    = "FES OFF"
	cmdPeripheralOff = "CH OFF"
)

// Commander issues mode and safety commands to the sensor peer.
type Commander struct {
	mu sync.Mutex
	w  io.Writer
}

func NewCommander(w io.Writer) *Commander {
	return &Commander{w: w}
}

// Run tells the peer to enter active reporting mode.
func (c *Commander) Run() error {
	return c.send(cmdRun)
}

// Pause tells the peer to stop reporting and acting on triggers.
func (c *Commander) Pause() error {
	return c.send(cmdPause)
}

// AllOff issues the full safety-off sequence: pause the peer, then force
// stimulation and peripheral outputs off, in that order.
func (c *Commander) AllOff() error {
	for _, cmd := range []string{cmdPause, cmdTriggerOff, cmdPeripheralOff} {
		if err := c.send(cmd); err != nil {
			return fmt.Errorf("send %q: %w", cmd, err)
		}
	}
	return nil
}

func (c *Commander) send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.w.Write([]byte(cmd + "\n"))
	return err
}
