// Package serve exposes a running capture pipeline over HTTP.
package serve

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"stillcam/notify"
	"stillcam/still"
	"stillcam/store"
)

// Server bundles the endpoints. Store may be nil when no capture log is kept.
type Server struct {
	Controller *still.Controller
	Notifier   *notify.Notifier
	Store      *store.Store
	Events     *EventStream
}

// Handler returns the routes wrapped with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", &StatusServer{Controller: s.Controller, Notifier: s.Notifier, Store: s.Store})
	mux.Handle("/trigger", handlers.MethodHandler{
		http.MethodPost: &TriggerServer{Controller: s.Controller},
	})
	mux.Handle("/still", &StillServer{Notifier: s.Notifier, Store: s.Store})
	if s.Events != nil {
		mux.Handle("/events", s.Events)
	}

	h := handlers.CustomLoggingHandler(io.Discard, mux, logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(h)
}

func logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	log.WithFields(log.Fields{
		"addr":   p.Request.RemoteAddr,
		"method": p.Request.Method,
		"status": p.StatusCode,
		"size":   p.Size,
	}).Debugf("HTTP %s", p.URL.Path)
}
