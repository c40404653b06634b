package midiout

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/banshee-data/presence-piano/internal/monitoring"
)

// ErrNoPort is returned when no output port matches the requested name.
var ErrNoPort = errors.New("no matching midi output port")

// ListPorts returns the names of the available MIDI output ports.
func ListPorts() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to list midi outputs: %w", err)
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names, nil
}

// Open connects a Mirror to the first output port whose name contains
// pattern (case-insensitive).
func Open(pattern string, opts Options) (*Mirror, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to list midi outputs: %w", err)
	}
	out, ok := pickPort(outs, pattern)
	if !ok {
		drv.Close()
		return nil, fmt.Errorf("%w: %q", ErrNoPort, pattern)
	}
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %q: %w", out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		drv.Close()
		return nil, fmt.Errorf("send to %q: %w", out.String(), err)
	}

	monitoring.Logf("midi out: connected to %s", out.String())
	closeFn := func() error {
		err := out.Close()
		drv.Close()
		return err
	}
	return NewMirror(send, closeFn, opts), nil
}

type named interface{ String() string }

func pickPort[P named](ports []P, pattern string) (P, bool) {
	for _, p := range ports {
		if containsCI(p.String(), pattern) {
			return p, true
		}
	}
	var zero P
	return zero, false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
