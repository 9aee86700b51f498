package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/arena"
	"github.com/krio-rogue/fotm-server/internal/store"
)

const viewTimeout = 2 * time.Second

// Directory is the slice of the store the HTTP layer reads from.
type Directory interface {
	ListUsers(ctx context.Context) ([]store.User, error)
	TeamByUser(ctx context.Context, userID uint) (*store.Team, error)
	TeamRank(ctx context.Context, teamID uint) (int, error)
}

type userEntry struct {
	store.User
	IsOnline bool `json:"isOnline"`
}

type teamEntry struct {
	Team *store.Team `json:"team"`
	Rank int         `json:"rank"`
}

// ListUsers returns every account with its populated team plus a live
// online flag taken from the arena's connection registry.
func ListUsers(a *arena.Arena, st Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := st.ListUsers(r.Context())
		if err != nil {
			log.Error("list users", zap.Error(err))
			http.Error(w, "failed to list users", http.StatusInternalServerError)
			return
		}

		reply := make(chan arena.View, 1)
		a.Inbox() <- arena.GetView{Reply: reply}

		var online map[uint]bool
		select {
		case v := <-reply:
			online = v.OnlineUsers
		case <-time.After(viewTimeout):
			http.Error(w, "arena unavailable", http.StatusServiceUnavailable)
			return
		}

		out := make([]userEntry, 0, len(users))
		for _, u := range users {
			out = append(out, userEntry{User: u, IsOnline: online[u.ID]})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// UserTeam returns one user's populated team together with its
// position on the rating ladder.
func UserTeam(st Directory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "bad user id", http.StatusBadRequest)
			return
		}

		team, err := st.TeamByUser(r.Context(), uint(id))
		if errors.Is(err, store.ErrTeamNotFound) {
			http.Error(w, "team not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error("load user team", zap.Uint64("user_id", id), zap.Error(err))
			http.Error(w, "failed to load team", http.StatusInternalServerError)
			return
		}

		rank, err := st.TeamRank(r.Context(), team.ID)
		if err != nil {
			log.Error("rank user team", zap.Uint64("user_id", id), zap.Error(err))
			http.Error(w, "failed to rank team", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(teamEntry{Team: team, Rank: rank})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
