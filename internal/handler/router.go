package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	companionHandler "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/handler/companion"
	relayHandler "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/handler/relay"
	middlewarePkg "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/middleware"
	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(relay *relayHandler.Handler, companion *companionHandler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handleHealth)

		// 语音中继入口始终挂载：凭证缺失由入口显式报告，而不是404。
		relay.RegisterRoutes(api)

		if companion != nil {
			companion.RegisterRoutes(api)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
