package mux

import (
	"errors"
	"net/http"
	"regexp"

	"seka-server/pkg/seka"
)

type queuePayload struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Rating    *int   `json:"rating"`
}

var validDisplayNameRx = regexp.MustCompile(`^[\p{L}\p{N} ]{0,40}\z`)
var statusOK = map[string]string{
	"status": "OK",
}

var errInvalidName = errors.New("display name must only contain letters, numbers, and spaces, and be 40 characters or less")

func (m *Mux) postQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pp queuePayload
		if !decodeRequest(w, r, &pp) {
			return
		}

		if !validDisplayNameRx.MatchString(pp.Name) {
			writeJSONError(w, http.StatusBadRequest, errInvalidName)
			return
		}

		profile := seka.Profile{
			Name:      pp.Name,
			AvatarURL: pp.AvatarURL,
		}

		if err := m.Matchmaker.Enqueue(r.Context(), playerID(r), profile, pp.Rating); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, statusOK)
	}
}

func (m *Mux) deleteQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Matchmaker.Dequeue(r.Context(), playerID(r)); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, statusOK)
	}
}
