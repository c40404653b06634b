// Package serialmux multiplexes the line-oriented serial link to the distance
// sensor bridge: many subscribers receive every line, and commands are
// serialised onto the single port.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer lets a subscriber fall a few readings behind without
// dropping any.
const subscriberBuffer = 16

// SerialMuxInterface is what the appliance needs from a sensor bridge link.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel that receives every line read
	// from the port until Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the port fails.
	Monitor(context.Context) error
	Close() error
	// Initialize sends bring-up commands to the device.
	Initialize(...string) error
	// AttachAdminRoutes mounts the console and live tail under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts the traffic seen by Monitor.
type Stats struct {
	Lines       uint64
	Dropped     uint64 // lines a full subscriber missed
	LastLine    string
	LastLineAt  time.Time
	Subscribers int
}

// SerialMux fans lines from one port out to many subscribers.
type SerialMux[T SerialPorter] struct {
	port T
	subs registry

	statsMu sync.Mutex
	stats   Stats

	// commandMu keeps concurrent commands from interleaving on the wire.
	commandMu sync.Mutex
}

// NewSerialMux creates a SerialMux reading from and writing to port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port}
}

// Subscribe registers a new line subscriber. Slow subscribers miss lines
// rather than stall the monitor loop.
func (s *SerialMux[T]) Subscribe() (string, chan string) {
	return s.subs.add(subscriberBuffer)
}

// Unsubscribe closes and forgets the subscriber. Unknown IDs are ignored.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subs.remove(id)
}

// Initialize sends the bring-up commands to the sensor bridge, in order,
// stopping at the first failure.
func (s *SerialMux[T]) Initialize(commands ...string) error {
	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command followed by a newline.
func (s *SerialMux[T]) SendCommand(command string) error {
	line := strings.TrimRight(command, "\r\n") + "\n"

	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor scans the port line by line and delivers each line to every
// subscriber. It returns nil at end of input, the read error if the port
// fails, or ctx.Err() on cancellation.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks in Read, so it runs on its own goroutine and the loop
	// below stays responsive to ctx.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.port)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// broadcast delivers line to all subscribers. It returns false once the mux
// is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	dropped, ok := s.subs.send(line)
	if !ok {
		return false
	}
	s.statsMu.Lock()
	s.stats.Lines++
	s.stats.Dropped += uint64(dropped)
	s.stats.LastLine = line
	s.stats.LastLineAt = time.Now()
	s.statsMu.Unlock()
	return true
}

// Stats returns a snapshot of the line counters.
func (s *SerialMux[T]) Stats() Stats {
	s.statsMu.Lock()
	st := s.stats
	s.statsMu.Unlock()
	st.Subscribers = s.subs.count()
	return st
}

// Close ends every subscription and closes the port.
func (s *SerialMux[T]) Close() error {
	s.subs.shut()
	return s.port.Close()
}
