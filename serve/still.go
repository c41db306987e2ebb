package serve

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"

	"stillcam/notify"
	"stillcam/sink"
	"stillcam/store"
)

// StillServer sends a written still back: the one named by the id
// parameter, or the latest one without it.
type StillServer struct {
	Notifier *notify.Notifier
	Store    *store.Store
}

func (s *StillServer) location(id string) (string, int, error) {
	if id == "" {
		var last *notify.Capture
		if s.Notifier != nil {
			last = s.Notifier.Last()
		}
		if last == nil {
			return "", http.StatusNotFound, errors.New("No still captured yet")
		}
		return last.Location, http.StatusOK, nil
	}
	if s.Store == nil {
		return "", http.StatusNotFound, errors.New("No capture log")
	}
	rec, err := s.Store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return "", http.StatusNotFound, fmt.Errorf("No record found for id %v", id)
	}
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	return rec.Location, http.StatusOK, nil
}

func (s *StillServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path, code, err := s.location(r.Form.Get("id"))
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	if path == "" || path == sink.Stdout {
		http.Error(w, "Still was not written to a file", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open still: %v", err), http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/x-portable-anymap")
	io.Copy(w, f)
}
