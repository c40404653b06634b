package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/presence-piano/internal/httputil"
	"github.com/banshee-data/presence-piano/internal/scheduler"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes mounts the distance chart and the raw readings on the
// tsweb debug page.
func (h *History) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("distance", "Chart of recent filtered distance", http.HandlerFunc(h.handleDistanceChart))
	debug.Handle("readings", "Recent readings as JSON", http.HandlerFunc(h.handleReadings))
}

func (h *History) handleDistanceChart(w http.ResponseWriter, r *http.Request) {
	readings := h.Snapshot()
	line := distanceChart(readings)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func distanceChart(readings []scheduler.Reading) *charts.Line {
	var start time.Time
	if len(readings) > 0 {
		start = readings[0].At
	}

	xs := make([]string, 0, len(readings))
	distance := make([]opts.LineData, 0, len(readings))
	trigger := make([]opts.LineData, 0, len(readings))
	release := make([]opts.LineData, 0, len(readings))
	playing := make([]opts.LineData, 0, len(readings))
	for _, rd := range readings {
		xs = append(xs, fmt.Sprintf("%.2f", rd.At.Sub(start).Seconds()))
		distance = append(distance, opts.LineData{Value: rd.DistanceMm})
		trigger = append(trigger, opts.LineData{Value: rd.TriggerMm})
		release = append(release, opts.LineData{Value: rd.ReleaseMm})
		if rd.Playing {
			playing = append(playing, opts.LineData{Value: rd.DistanceMm, Name: rd.Note.String()})
		} else {
			playing = append(playing, opts.LineData{Value: "-"})
		}
	}

	subtitle := "no readings yet"
	if len(readings) > 0 {
		last := readings[len(readings)-1]
		subtitle = fmt.Sprintf("%s  presence=%s  distance=%dmm  readings=%d",
			last.At.Format(time.RFC3339), last.Presence, last.DistanceMm, len(readings))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Presence Distance", Theme: "dark", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Filtered Distance", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Distance (mm)", Min: 0}),
	)
	line.SetXAxis(xs).
		AddSeries("distance", distance, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("trigger", trigger, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Step: "end"})).
		AddSeries("release", release, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Step: "end"})).
		AddSeries("playing", playing, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	return line
}

type readingJSON struct {
	At         time.Time `json:"at"`
	RawMm      uint16    `json:"raw_mm"`
	TimedOut   bool      `json:"timed_out"`
	DistanceMm int       `json:"distance_mm"`
	Presence   string    `json:"presence"`
	Note       string    `json:"note,omitempty"`
	Playing    bool      `json:"playing"`
}

func (h *History) handleReadings(w http.ResponseWriter, r *http.Request) {
	readings := h.Snapshot()
	out := make([]readingJSON, 0, len(readings))
	for _, rd := range readings {
		j := readingJSON{
			At:         rd.At,
			RawMm:      rd.Raw.RawMm,
			TimedOut:   rd.Raw.TimedOut,
			DistanceMm: rd.DistanceMm,
			Presence:   rd.Presence.String(),
			Playing:    rd.Playing,
		}
		if rd.Playing {
			j.Note = rd.Note.String()
		}
		out = append(out, j)
	}
	httputil.WriteJSONOK(w, out)
}
