package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/presence-piano/internal/scheduler"
)

var (
	rawColor      = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	distanceColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	triggerColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	releaseColor  = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// WriteDistancePlot saves a PNG (or SVG/PDF, by extension) of raw and
// filtered distance over time with the trigger and release thresholds.
func WriteDistancePlot(path string, readings []scheduler.Reading) error {
	if len(readings) == 0 {
		return fmt.Errorf("no readings to plot")
	}

	p := plot.New()
	p.Title.Text = "Presence sensor trace"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Distance (mm)"

	start := readings[0].At
	raw := make(plotter.XYs, 0, len(readings))
	filtered := make(plotter.XYs, 0, len(readings))
	trigger := make(plotter.XYs, 0, len(readings))
	release := make(plotter.XYs, 0, len(readings))
	for _, r := range readings {
		x := r.At.Sub(start).Seconds()
		if !r.Raw.TimedOut {
			raw = append(raw, plotter.XY{X: x, Y: float64(r.Raw.RawMm)})
		}
		filtered = append(filtered, plotter.XY{X: x, Y: float64(r.DistanceMm)})
		if r.TriggerMm > 0 {
			trigger = append(trigger, plotter.XY{X: x, Y: float64(r.TriggerMm)})
			release = append(release, plotter.XY{X: x, Y: float64(r.ReleaseMm)})
		}
	}

	if len(raw) > 0 {
		s, err := plotter.NewScatter(raw)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = rawColor
		s.GlyphStyle.Radius = vg.Points(1)
		p.Add(s)
		p.Legend.Add("raw", s)
	}

	for _, series := range []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"filtered", filtered, distanceColor},
		{"trigger", trigger, triggerColor},
		{"release", release, releaseColor},
	} {
		if len(series.pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(series.pts)
		if err != nil {
			return err
		}
		l.Color = series.color
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(series.name, l)
	}

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
