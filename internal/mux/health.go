package mux

import "net/http"

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (m *Mux) getHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Store.Ping(r.Context()); err != nil {
			m.Logger.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:  "UNAVAILABLE",
				Version: m.version,
			})
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:  "OK",
			Version: m.version,
		})
	}
}
