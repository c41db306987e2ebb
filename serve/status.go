package serve

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stillcam/notify"
	"stillcam/still"
	"stillcam/store"
)

type StatusResponse struct {
	Pipeline still.Status          `json:"pipeline"`
	Last     *notify.Capture       `json:"last,omitempty"`
	Recent   []store.CaptureRecord `json:"recent,omitempty"`
}

type StatusServer struct {
	Controller *still.Controller
	Notifier   *notify.Notifier
	Store      *store.Store
}

func (s *StatusServer) BuildResponse(recent int) (*StatusResponse, error) {
	resp := &StatusResponse{
		Pipeline: s.Controller.Status(),
	}
	if s.Notifier != nil {
		resp.Last = s.Notifier.Last()
	}
	if s.Store != nil && recent > 0 {
		recs, err := s.Store.Recent(recent)
		if err != nil {
			return nil, err
		}
		resp.Recent = recs
	}
	return resp, nil
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recent := 0
	if v := r.Form.Get("recent"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "recent must be a positive number", http.StatusBadRequest)
			return
		}
		recent = n
	}
	resp, err := s.BuildResponse(recent)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	js, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
