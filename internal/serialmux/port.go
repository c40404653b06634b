package serialmux

import "io"

// SerialPorter is the part of a serial port the mux uses. Reads block until
// data arrives; a read timeout must not be configured because the line
// scanner treats empty reads as an error.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener opens a serial port. NewRealSerialMux uses the
// go.bug.st/serial implementation; tests substitute their own.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
