package mux

import (
	"net/http"

	"github.com/gorilla/mux"
	"seka-server/pkg/protocol"
)

func (m *Mux) getSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := m.Coordinator.State(r.Context(), playerID(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, state)
	}
}

func (m *Mux) postSessionIDAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg protocol.PayloadIn
		if !decodeRequest(w, r, &msg) {
			return
		}

		sessionID := mux.Vars(r)["id"]
		id := playerID(r)
		if err := m.Coordinator.HandleAction(r.Context(), sessionID, id, &msg); err != nil {
			writeServiceError(w, err)
			return
		}

		s, err := m.Store.Get(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, s.State(id))
	}
}
