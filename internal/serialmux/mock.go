package serialmux

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/presence-piano/internal/monitoring"
)

// DefaultReplayInterval matches the sensor's continuous ranging cadence.
const DefaultReplayInterval = 50 * time.Millisecond

// MockSerialPort replays canned sensor lines and records the commands it is
// sent. It stands in for the sensor bridge in dev mode.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	commands bytes.Buffer
	closed   bool
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("serial port closed")
	}
	return m.commands.Write(p)
}

// Close stops the replay and unblocks readers.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.w.CloseWithError(io.EOF)
	return m.r.Close()
}

// Commands returns every command written so far, one per line.
func (m *MockSerialPort) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := strings.Split(strings.TrimRight(m.commands.String(), "\n"), "\n")
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

// NewMockSerialMux creates a SerialMux backed by a MockSerialPort that
// writes lines one at a time every interval, starting over after the last
// one, until the mux is closed.
func NewMockSerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	r, w := io.Pipe()
	mockPort := &MockSerialPort{r: r, w: w}
	monitoring.Logf("Replaying %d mock sensor lines every %s", len(lines), interval)

	go func() {
		if len(lines) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(lines) {
			<-ticker.C
			if _, err := io.WriteString(w, strings.TrimRight(lines[i], "\r\n")+"\n"); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(mockPort)
}
