package serialmux

import (
	"context"
	"net/http"
)

// DisabledSerialMux stands in for the bridge under -disable-sensor. No line
// ever arrives, so the sensor source times out and the filter settles on the
// far sentinel; the appliance stays idle but the rest of it can be exercised.
type DisabledSerialMux struct {
	subs registry
}

func NewDisabledSerialMux() *DisabledSerialMux { return &DisabledSerialMux{} }

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add(0) }
func (d *DisabledSerialMux) Unsubscribe(id string)            { d.subs.remove(id) }
func (d *DisabledSerialMux) SendCommand(string) error         { return nil }
func (d *DisabledSerialMux) Initialize(...string) error       { return nil }

// Monitor blocks until ctx is done.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.subs.shut()
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sensor bridge disabled"))
	})
}
