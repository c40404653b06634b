package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSerialMuxReplaysLinesInOrder(t *testing.T) {
	mux := NewMockSerialMux([]string{"900", "700\r\n", "TIMEOUT"}, time.Millisecond)
	_, lines := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case line := <-lines:
			got = append(got, line)
		case <-timeout:
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{"900", "700", "TIMEOUT", "900"}, got)

	require.NoError(t, mux.Close())
}

func TestMockSerialPortRecordsCommands(t *testing.T) {
	mux := NewMockSerialMux(nil, 0)
	require.NoError(t, mux.Initialize("TIMEOUT 500", "CONTINUOUS"))

	assert.Equal(t, []string{"TIMEOUT 500", "CONTINUOUS"}, mux.port.Commands())

	require.NoError(t, mux.Close())
	assert.Error(t, mux.SendCommand("CONTINUOUS"))
}
