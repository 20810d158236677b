package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/statementdesk/ledgerlink/internal/handlers"
	"github.com/statementdesk/ledgerlink/internal/middleware"
)

func NewRouter(deps *handlers.Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	lm := middleware.NewLoggerMiddleware(deps.Log)
	r.Use(lm.LoggerMiddleware)

	m := middleware.NewMiddleware(deps.Firebase)

	ah := handlers.NewAuthHandlers(deps)
	sh := handlers.NewSyncHandlers(deps)
	mh := handlers.NewMappingHandlers(deps)
	ush := handlers.NewUserHandlers(deps)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Provider redirects arrive without a bearer token.
	r.Get("/auth/{provider}/callback", ah.Callback)

	r.Group(func(r chi.Router) {
		r.Use(m.FirebaseAuth)
		r.Mount("/auth", ah.AuthRoutes())
		r.Mount("/sync", sh.SyncRoutes())
		r.Mount("/mappings", mh.MappingRoutes())
		r.Mount("/users", ush.UserRoutes())
	})

	return r
}
