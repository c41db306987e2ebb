package serve

import (
	"fmt"
	"net/http"

	"stillcam/still"
)

// TriggerServer takes a still on a triggered run.
type TriggerServer struct {
	Controller *still.Controller
}

func (s *TriggerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.Controller.Trigger() {
		opts := s.Controller.Options()
		http.Error(w, fmt.Sprintf("Not accepting triggers (%v, %v mode)", s.Controller.State(), opts.Mode()), http.StatusConflict)
		return
	}
	w.Header().Add("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}
