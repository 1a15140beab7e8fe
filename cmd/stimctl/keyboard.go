package main

import (
	"context"
	"io"
	"time"

	"github.com/eiannone/keyboard"

	"stimctl/internal/tuning"
)

// keyboardSource adapts the terminal keyboard into a tuning key source.
// Ctrl+C and Esc request shutdown instead of being forwarded, since the raw
// terminal mode swallows the usual interrupt signal.
type keyboardSource struct {
	events <-chan keyboard.KeyEvent
	stop   func()
}

func openKeyboard(stop func()) (*keyboardSource, error) {
	events, err := keyboard.GetKeys(16)
	if err != nil {
		return nil, err
	}
	return &keyboardSource{events: events, stop: stop}, nil
}

func (k *keyboardSource) Next(ctx context.Context) (tuning.KeyEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return tuning.KeyEvent{}, ctx.Err()
		case ev, ok := <-k.events:
			if !ok {
				return tuning.KeyEvent{}, io.EOF
			}
			if ev.Err != nil {
				return tuning.KeyEvent{}, ev.Err
			}
			if ev.Key == keyboard.KeyCtrlC || ev.Key == keyboard.KeyEsc {
				k.stop()
				return tuning.KeyEvent{}, context.Canceled
			}
			if ev.Rune == 0 {
				continue
			}
			return tuning.KeyEvent{Key: ev.Rune, At: time.Now()}, nil
		}
	}
}

func (k *keyboardSource) Close() {
	_ = keyboard.Close()
}
