package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/VrumVrum/Gatespark/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware платёжного шлюза.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	// Современный REST-путь вебхуков Revolut.
	r.Route("/gatespark/v1", func(r chi.Router) {
		r.Post("/webhook", h.RestWebhook)

		// Отчёты читает дашборд с другого origin.
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{http.MethodGet},
			}))
			r.Get("/reports", h.GetReport)
		})
	})

	// Устаревший путь, сохранён для уже зарегистрированных вебхуков.
	r.Post("/wc-api/gatespark_revolut_webhook", h.LegacyWebhook)

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Get("/{id}/notes", h.GetOrderNotes)
		r.Post("/{id}/checkout", h.Checkout)
		r.Post("/{id}/refund", h.Refund)
		r.Post("/{id}/capture", h.Capture)
		r.Post("/{id}/cancel", h.Cancel)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
