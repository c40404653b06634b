package serialmux

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/presence-piano/internal/httputil"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var consoleTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// AttachAdminRoutes mounts a command console, a live SSE tail of the
// bridge's output and a JSON status on the tsweb debug page.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("send-command", "Sensor bridge console", s.handleConsole)
	debug.HandleSilentFunc("send-command-api", s.handleSendCommand)
	debug.HandleSilentFunc("tail", s.handleTail)
	debug.HandleSilentFunc("tail.js", serveTailJS)
	debug.HandleFunc("serial-status", "Sensor bridge line counters", s.handleStatus)
}

func (s *SerialMux[T]) handleConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consoleTemplate.Execute(w, nil); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
	}
}

func (s *SerialMux[T]) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.SendCommand(command); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "Wrote command %q to serial port", command)
}

// handleTail streams every line as a server-sent event until the client
// goes away or the mux closes.
func (s *SerialMux[T]) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func serveTailJS(w http.ResponseWriter, r *http.Request) {
	data, err := adminTemplateFS.ReadFile("templates/tail.js")
	if err != nil {
		http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *SerialMux[T]) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.Stats())
}
