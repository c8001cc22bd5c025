// Package wakeserver is the daemon's localhost HTTP surface. It exists for
// one purpose: letting the short-lived action context prod the primary
// process into reconciling promptly. The signal is advisory; delivery
// failures are invisible to correctness.
package wakeserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/waymark-app/waymark/internal/events"
	"github.com/waymark-app/waymark/internal/middleware"
)

// maxWakeBody caps request bodies on an endpoint that is payload-free by
// contract.
const maxWakeBody = 1 << 10

// Server handles the wake and health endpoints.
type Server struct {
	bus *events.Dispatcher
	log *slog.Logger
}

// New constructs the Server with its dependencies.
func New(bus *events.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{bus: bus, log: log}
}

// Router builds the chi router with the standard middleware chain:
// request id, request logging, panic recovery, then the body-size cap.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewSlogLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewMaxBodySize(maxWakeBody))

	r.Post("/wake", s.postWake)
	r.Get("/healthz", s.getHealth)
	return r
}

// postWake handles POST /wake. The body is ignored; the event is published
// before the response is written so a reconciliation triggered by the
// signal observes any mailbox intent committed before the signal was sent.
func (s *Server) postWake(w http.ResponseWriter, r *http.Request) {
	s.bus.Publish(events.Event{Kind: events.KindWake})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// getHealth handles GET /healthz. It returns HTTP 200 with {"status":"ok"}
// when the daemon is running.
func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
