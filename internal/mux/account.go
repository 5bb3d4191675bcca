package mux

import (
	"errors"
	"net/http"

	"seka-server/pkg/ledger"
)

type balanceResponse struct {
	Balance int `json:"balance"`
}

func (m *Mux) getBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, err := m.Ledger.BalanceOf(r.Context(), playerID(r))
		if errors.Is(err, ledger.ErrAccountNotFound) {
			writeJSONError(w, http.StatusNotFound, nil)
			return
		}

		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
	}
}

func (m *Mux) getTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := parseRows(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}

		entries, err := m.Ledger.History(r.Context(), playerID(r), rows)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}

		if entries == nil {
			entries = []*ledger.Entry{}
		}

		writeJSON(w, http.StatusOK, entries)
	}
}
