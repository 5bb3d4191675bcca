package mux

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	gmux "github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"seka-server/internal/jwt"
	"seka-server/pkg/ledger"
	"seka-server/pkg/matchmaking"
	"seka-server/pkg/room"
	"seka-server/pkg/store"
)

type ctxKey int

const (
	ctxPlayerKey ctxKey = iota
)

// Ledger is the read side of the player accounts
type Ledger interface {
	BalanceOf(ctx context.Context, playerID int64) (int, error)
	History(ctx context.Context, playerID int64, limit int) ([]*ledger.Entry, error)
}

// Services are the collaborators the handlers call
type Services struct {
	Store       store.Store
	Ledger      Ledger
	Hub         *room.Hub
	Coordinator *room.Coordinator
	Matchmaker  *matchmaking.Matchmaker
	Logger      logrus.FieldLogger
}

// Mux handles HTTP requests
type Mux struct {
	*gmux.Router
	Services
	version string

	// store for testing purposes
	authRouter *gmux.Router
}

// NewMux returns a new HTTP mux
func NewMux(version string, services Services) *Mux {
	this := &Mux{
		Router:   gmux.NewRouter(),
		Services: services,
		version:  version,
	}

	this.authRouter = this.Router.NewRoute().Subrouter()
	this.authRouter.Use(this.authMiddleware)

	// unauthorized endpoints
	{
		r := this.Router
		r.Methods(http.MethodGet).Path("/health").Handler(this.getHealth())
	}

	// requires bearer authorization
	{
		r := this.authRouter
		r.Methods(http.MethodPost).Path("/queue").Handler(this.postQueue())
		r.Methods(http.MethodDelete).Path("/queue").Handler(this.deleteQueue())
		r.Methods(http.MethodGet).Path("/session").Handler(this.getSession())
		r.Methods(http.MethodPost).Path("/session/{id}/action").Handler(this.postSessionIDAction())
		r.Methods(http.MethodGet).Path("/balance").Handler(this.getBalance())
		r.Methods(http.MethodGet).Path("/transactions").Handler(this.getTransactions())
		r.Methods(http.MethodGet).Path("/ws").Handler(this.getWS())
	}

	return this
}

func (m *Mux) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.FormValue("access_token")
		if token == "" {
			authHeader := strings.Split(r.Header.Get("Authorization"), " ")
			if len(authHeader) != 2 || strings.ToLower(authHeader[0]) != "bearer" {
				writeJSONError(w, http.StatusUnauthorized, nil)
				return
			}

			token = authHeader[1]
		}

		playerID, err := jwt.ValidPlayerID(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, nil)
			return
		}

		newCtx := context.WithValue(r.Context(), ctxPlayerKey, playerID)
		w.Header().Set("Seka-PlayerID", strconv.FormatInt(playerID, 10))
		next.ServeHTTP(w, r.WithContext(newCtx))
	})
}

func playerID(r *http.Request) int64 {
	return r.Context().Value(ctxPlayerKey).(int64)
}
