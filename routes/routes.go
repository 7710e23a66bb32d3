package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/retrorumble/tournament-lobby/handlers"
)

func SetupRoutes(
	router chi.Router,
	allowedOrigins []string,
	tournamentHandler *handlers.TournamentHandler,
	matchHandler *handlers.MatchHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// WebSocket держит соединение открытым, поэтому он вне группы с таймаутом.
	router.Get("/ws", webSocketHandler.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", tournamentHandler.ListHandler)
			r.Post("/", tournamentHandler.CreateHandler)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", tournamentHandler.GetByIDHandler)
				r.Post("/join", tournamentHandler.JoinHandler)
				r.Post("/leave", tournamentHandler.LeaveHandler)
				r.Post("/start", tournamentHandler.StartHandler)
				r.Post("/resync", tournamentHandler.ResyncHandler)
				r.Get("/bracket", tournamentHandler.BracketHandler)
				r.Get("/matches", tournamentHandler.ListMatchesHandler)
			})
		})

		r.Get("/matches/{matchID}", matchHandler.GetByIDHandler)
		r.Post("/match-result", matchHandler.ReportResultHandler)
	})
}
