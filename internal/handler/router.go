package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/cardspend-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса cardspend.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/methods", h.CreateMethod)
			r.Get("/methods", h.GetMethods)

			r.Post("/merchants", h.CreateMerchant)
			r.Get("/merchants", h.GetMerchants)

			r.Post("/transactions", h.CreateTransaction)
			r.Get("/transactions", h.GetTransactions)
			r.Get("/transactions/{id}", h.GetTransaction)
			r.Put("/transactions/{id}", h.UpdateTransaction)
			r.Delete("/transactions/{id}", h.DeleteTransaction)

			r.Post("/rewards/simulate", h.Simulate)
			r.Post("/rewards/recalculate", h.Recalculate)

			r.Get("/summary", h.GetSummary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
