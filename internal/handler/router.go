package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/gmailmart-bot/internal/middleware"
)

// SetupRouter настраивает маршруты административного API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/stats", h.GetStats)

		r.Get("/submissions", h.ListSubmissions)
		r.Post("/submissions/{id}/review", h.ReviewSubmission)

		r.Get("/withdrawals", h.ListWithdrawals)
		r.Post("/withdrawals/{id}/review", h.ReviewWithdrawal)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings/{key}", h.PutSetting)

		r.Get("/users", h.SearchUsers)
		r.Get("/users/{id}", h.GetUser)
		r.Get("/users/{id}/entries", h.GetBalanceEntries)
		r.Post("/users/{id}/balance", h.AdjustBalance)
		r.Post("/users/{id}/ban", h.Ban)
		r.Delete("/users/{id}/ban", h.Unban)

		r.Post("/promos", h.CreatePromo)

		r.Get("/tickets", h.PendingTickets)
		r.Post("/tickets/{id}/reply", h.ReplyTicket)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
