package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate the sensor bridge firmware talks at.
	DefaultBaudRate = 115200
	// DefaultFraming is data bits, parity and stop bits in the usual
	// shorthand.
	DefaultFraming = "8N1"
)

// PortOptions selects how the bridge port is opened.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	Framing  string `json:"framing"`
}

var parities = map[byte]serial.Parity{
	'N': serial.NoParity,
	'E': serial.EvenParity,
	'O': serial.OddParity,
}

// SerialMode converts the options into a go.bug.st/serial mode. An empty
// field takes its default.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	baud := o.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	framing := strings.ToUpper(strings.TrimSpace(o.Framing))
	if framing == "" {
		framing = DefaultFraming
	}
	if len(framing) != 3 {
		return nil, fmt.Errorf("invalid framing %q: want e.g. 8N1", o.Framing)
	}

	data := int(framing[0] - '0')
	if data < 5 || data > 8 {
		return nil, fmt.Errorf("invalid framing %q: data bits must be 5 to 8", o.Framing)
	}
	parity, ok := parities[framing[1]]
	if !ok {
		return nil, fmt.Errorf("invalid framing %q: parity must be N, E or O", o.Framing)
	}
	var stop serial.StopBits
	switch framing[2] {
	case '1':
		stop = serial.OneStopBit
	case '2':
		stop = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid framing %q: stop bits must be 1 or 2", o.Framing)
	}

	return &serial.Mode{BaudRate: baud, DataBits: data, Parity: parity, StopBits: stop}, nil
}
