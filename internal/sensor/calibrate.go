package sensor

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// NoiseStats summarises a run of filtered readings taken against a still
// target. It is used to choose a hysteresis band wider than the sensor jitter.
type NoiseStats struct {
	Count     int
	Errors    int
	MinMm     float64
	MaxMm     float64
	MeanMm    float64
	StdDevMm  float64
	MedianMm  float64
	P05Mm     float64
	P95Mm     float64
	SpreadMm  float64 // P95 - P05
	Suggested int     // suggested hysteresis in mm
}

// MinSuggestedHysteresisMm is the floor for SuggestHysteresis.
const MinSuggestedHysteresisMm = 20

// Summarise computes NoiseStats for raw samples. Invalid samples are counted
// as errors and excluded from the distance statistics.
func Summarise(samples []Sample) NoiseStats {
	values := make([]float64, 0, len(samples))
	out := NoiseStats{Count: len(samples)}
	for _, s := range samples {
		if !s.Valid() {
			out.Errors++
			continue
		}
		values = append(values, float64(s.RawMm))
	}
	if len(values) == 0 {
		out.Suggested = SuggestHysteresis(out)
		return out
	}

	sort.Float64s(values)
	out.MinMm = values[0]
	out.MaxMm = values[len(values)-1]
	out.MeanMm, out.StdDevMm = stat.MeanStdDev(values, nil)
	if math.IsNaN(out.StdDevMm) {
		out.StdDevMm = 0
	}
	out.MedianMm = stat.Quantile(0.5, stat.Empirical, values, nil)
	out.P05Mm = stat.Quantile(0.05, stat.Empirical, values, nil)
	out.P95Mm = stat.Quantile(0.95, stat.Empirical, values, nil)
	out.SpreadMm = out.P95Mm - out.P05Mm
	out.Suggested = SuggestHysteresis(out)
	return out
}

// SuggestHysteresis returns a hysteresis band that covers the observed
// jitter: the larger of four standard deviations and twice the 5-95%
// spread, rounded up to 10mm and never below MinSuggestedHysteresisMm.
func SuggestHysteresis(s NoiseStats) int {
	band := math.Max(4*s.StdDevMm, 2*s.SpreadMm)
	suggested := int(math.Ceil(band/10) * 10)
	if suggested < MinSuggestedHysteresisMm {
		return MinSuggestedHysteresisMm
	}
	return suggested
}
