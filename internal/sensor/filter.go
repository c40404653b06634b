// Package sensor turns raw time-of-flight readings into a stable distance.
//
// The sensor intermittently reports zero, saturated or timed-out values. The
// Filter holds the last good reading across short error runs and only falls
// back to the far sentinel once an error run outlasts MaxConsecutiveErrors
// polls, so a single bad sample never ends a presence episode while a
// genuinely absent target still does.
package sensor

const (
	// MaxRangeMm is the largest reading accepted as valid.
	MaxRangeMm = 8000
	// FarMm is reported after a sustained error run and reads as "no target".
	FarMm = 9999
	// MaxConsecutiveErrors is the number of bad polls held before FarMm.
	MaxConsecutiveErrors = 10
	// TimeoutRawMm is the raw value a VL53L0X returns on a range timeout.
	TimeoutRawMm = 65535
)

// Sample is one sensor poll.
type Sample struct {
	RawMm    uint16
	TimedOut bool
}

// Valid reports whether the sample can be used as a distance.
func (s Sample) Valid() bool {
	return !s.TimedOut && int(s.RawMm) <= MaxRangeMm
}

// Filter is the distance filter state. ValueMm is both the current output and
// the last known good baseline.
type Filter struct {
	ValueMm           int
	ConsecutiveErrors int
}

// NewFilter returns a filter that starts out reporting FarMm.
func NewFilter() Filter {
	return Filter{ValueMm: FarMm}
}

// Apply is the pure form of Update: it returns the filter state after raw.
func Apply(raw Sample, last Filter) Filter {
	if !raw.Valid() {
		last.ConsecutiveErrors++
		if last.ConsecutiveErrors > MaxConsecutiveErrors {
			last.ValueMm = FarMm
		}
		return last
	}
	return Filter{ValueMm: int(raw.RawMm)}
}

// Update feeds raw into the filter and returns the filtered distance.
func (f *Filter) Update(raw Sample) int {
	*f = Apply(raw, *f)
	return f.ValueMm
}
