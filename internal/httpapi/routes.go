package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/krio-rogue/fotm-server/internal/arena"
	"github.com/krio-rogue/fotm-server/internal/ws"
)

func SetupRoutes(a *arena.Arena, st Directory, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/users", ListUsers(a, st, log))
	r.Get("/users/{id}/team", UserTeam(st, log))
	r.Get("/ws", ws.Handler(a, ws.QueryIdentity{}, log))
	return r
}
