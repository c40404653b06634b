package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	assert.GreaterOrEqual(t, c.Since(time.Now().Add(-time.Second)), time.Second)

	ticker := c.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}

func TestMockClockAdvance(t *testing.T) {
	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(55 * time.Millisecond)
	assert.Equal(t, 55*time.Millisecond, c.Since(epoch))
}

func TestMockTickerFiresWhenDue(t *testing.T) {
	c := NewMockClock(epoch)
	ticker := c.NewTicker(50 * time.Millisecond)

	c.Advance(45 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("fired before its interval")
	default:
	}

	c.Advance(5 * time.Millisecond)
	select {
	case at := <-ticker.C():
		assert.Equal(t, epoch.Add(50*time.Millisecond), at)
	default:
		t.Fatal("did not fire at its interval")
	}
}

func TestMockTickerDropsUnreadTicks(t *testing.T) {
	c := NewMockClock(epoch)
	ticker := c.NewTicker(5 * time.Millisecond)

	for i := 0; i < 4; i++ {
		c.Advance(5 * time.Millisecond)
	}
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("unread ticks were queued")
	default:
	}

	// A long jump fires once and realigns to the next interval.
	c.Advance(23 * time.Millisecond)
	<-ticker.C()
	c.Advance(2 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker lost its cadence after a long jump")
	}
}

func TestMockClockTickers(t *testing.T) {
	c := NewMockClock(epoch)
	a := c.NewTicker(time.Second)
	b := c.NewTicker(time.Second)
	require.Equal(t, 2, c.Tickers())

	a.Stop()
	assert.Equal(t, 1, c.Tickers())

	b.Stop()
	c.Advance(time.Second)
	assert.Equal(t, 0, c.Tickers())
	select {
	case <-b.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockClockRejectsZeroInterval(t *testing.T) {
	assert.Panics(t, func() { NewMockClock(epoch).NewTicker(0) })
}
