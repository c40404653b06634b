package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotReading is returned for bridge lines that carry no range reading.
var ErrNotReading = errors.New("not a range reading")

// Bring-up commands sent to the sensor bridge before continuous ranging. They
// select long-range mode: a lower signal rate limit and longer VCSEL pulses.
var InitCommands = []string{
	"TIMEOUT 500",     // range timeout in ms
	"SIGNAL_RATE 0.1", // return signal rate limit in MCPS
	"VCSEL PRE 18",    // pre-range pulse period
	"VCSEL FINAL 14",  // final-range pulse period
	"CONTINUOUS",      // back-to-back ranging
}

type jsonReading struct {
	RangeMm *int `json:"range_mm"`
	Timeout bool `json:"timeout"`
}

// ParseReading decodes one line from the sensor bridge. Accepted forms are a
// bare millimetre count ("742"), the word "TIMEOUT", or a JSON object
// {"range_mm": 742, "timeout": false}.
func ParseReading(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, ErrNotReading
	}

	if strings.EqualFold(line, "TIMEOUT") {
		return Sample{RawMm: TimeoutRawMm, TimedOut: true}, nil
	}

	if strings.HasPrefix(line, "{") {
		var r jsonReading
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return Sample{}, fmt.Errorf("failed to unmarshal reading: %w", err)
		}
		if r.Timeout {
			return Sample{RawMm: TimeoutRawMm, TimedOut: true}, nil
		}
		if r.RangeMm == nil {
			return Sample{}, ErrNotReading
		}
		return clampReading(*r.RangeMm), nil
	}

	mm, err := strconv.Atoi(line)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %q", ErrNotReading, line)
	}
	return clampReading(mm), nil
}

func clampReading(mm int) Sample {
	if mm < 0 {
		mm = 0
	}
	if mm > TimeoutRawMm {
		mm = TimeoutRawMm
	}
	return Sample{RawMm: uint16(mm)}
}
