package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenRealPort opens a serial port with go.bug.st/serial.
func OpenRealPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux backed by the serial port at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return NewSerialMuxFrom(OpenRealPort, path, opts)
}

// NewSerialMuxFrom opens a port with open and wraps it in a SerialMux.
func NewSerialMuxFrom(open SerialPortOpener, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux[SerialPorter](port), nil
}
