package mux

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"seka-server/pkg/ledger"
	"seka-server/pkg/room"
	"seka-server/pkg/seka"
	"seka-server/pkg/store"
)

const maxRows = 100
const defaultRows = 25

func parseRows(r *http.Request) (int, error) {
	rows := defaultRows
	if rowsStr := r.FormValue("rows"); rowsStr != "" {
		val, err := strconv.Atoi(rowsStr)
		if err != nil {
			return 0, err
		}

		if val <= 0 {
			return 0, errors.New("rows must be greater than zero")
		}

		if val > maxRows {
			return 0, fmt.Errorf("rows cannot be greater than %d", maxRows)
		}

		rows = val
	}

	return rows, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if ct := r.Header.Get("Content-Type"); ct != "application/json" && ct != "text/json" {
		writeJSONError(w, http.StatusUnsupportedMediaType, nil)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("could not write JSON response")
	}
}

type errorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// isUserError returns true if the error message is safe to show to the player
func isUserError(err error) bool {
	var storeErr store.UserError
	var roomErr room.UserError
	var ledgerErr ledger.UserError
	return seka.IsValidation(err) || errors.As(err, &storeErr) || errors.As(err, &roomErr) || errors.As(err, &ledgerErr)
}

// statusCode maps a service error to an HTTP status
func statusCode(err error) int {
	switch {
	case errors.Is(err, room.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, room.ErrNotPlaying), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case isUserError(err):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// writeServiceError writes err with the status it maps to
func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusCode(err), err)
}

func writeJSONError(w http.ResponseWriter, statusCode int, err error) {
	var msg string

	if statusCode < 500 && err != nil {
		msg = err.Error()
	} else {
		msg = http.StatusText(statusCode)
	}

	if statusCode >= 500 {
		logrus.WithField("statusCode", statusCode).Error(err)
	}

	writeJSON(w, statusCode, errorResponse{
		Message:    msg,
		StatusCode: statusCode,
	})
}
