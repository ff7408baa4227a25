// Package http exposes the local stores and the backend passthroughs over a
// JSON API. Successful responses are {"data": ...}; failures are
// {"error": message, "code": code}.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"telecare/internal/backend"
	"telecare/internal/cart"
	"telecare/internal/checkout"
	"telecare/internal/clinical"
	"telecare/internal/content"
	"telecare/internal/observability"
	"telecare/internal/payment"
	"telecare/internal/prefs"
	"telecare/internal/realtime"
	"telecare/pkg/domain"
)

// Backend is the subset of *backend.Client the API proxies.
type Backend interface {
	FetchProduct(ctx context.Context, slug string) (domain.Product, error)
	ApprovePrescription(ctx context.Context, id domain.ID, notes string) (domain.Prescription, error)
	FetchPrescriptions(ctx context.Context, patientID domain.ID) ([]domain.Prescription, error)
	FetchTriageSession(ctx context.Context, patientID domain.ID) (domain.TriageSession, error)
	SearchPatients(ctx context.Context, query string, limit int) ([]domain.Patient, error)
	FetchAppointment(ctx context.Context, id domain.ID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, req backend.CreateAppointmentRequest) (domain.Appointment, error)
}

// Deps are the components served by the router. Backend and Checkout may be
// nil when no backend is configured; their routes then answer 503.
type Deps struct {
	Cart     *cart.Cart
	Payments *payment.Store
	Content  *content.Store
	Clinical *clinical.Cache
	Prefs    *prefs.Store
	Checkout *checkout.Service
	Backend  Backend
	Inbox    *realtime.Inbox
	Events   *realtime.Broadcaster
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

type server struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &server{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerToken)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Delete("/", s.clearCart)
			r.Post("/items", s.addCartItem)
			r.Put("/items/{slug}", s.setCartQuantity)
			r.Delete("/items/{slug}", s.removeCartItem)
			r.Put("/open", s.setCartOpen)
			r.Post("/refresh", s.refreshCart)
		})
		r.Post("/checkout", s.checkout)

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", s.listPayments)
			r.Get("/active", s.activePayment)
			r.Get("/{id}", s.getPayment)
			r.Put("/{id}/status", s.setPaymentStatus)
			r.Put("/{id}/channel", s.setPaymentChannel)
			r.Post("/{id}/retry", s.retryPayment)
			r.Delete("/{id}", s.resetPayment)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.listArticles)
			r.Post("/", s.createArticle)
			r.Get("/categories", s.articleCategories)
			r.Get("/{id}", s.getArticle)
			r.Patch("/{id}", s.updateArticle)
			r.Delete("/{id}", s.deleteArticle)
		})

		r.Route("/clinical", func(r chi.Router) {
			r.Get("/prescriptions", s.listPrescriptions)
			r.Get("/prescriptions/{id}", s.getPrescription)
			r.Get("/orders", s.listClinicalOrders)
			r.Get("/orders/{id}", s.getClinicalOrder)
		})

		r.Post("/prescriptions/{id}/approve", s.approvePrescription)
		r.Get("/patients", s.searchPatients)
		r.Post("/patients/{id}/prescriptions/sync", s.syncPrescriptions)
		r.Get("/patients/{id}/triage", s.triageSession)
		r.Post("/appointments", s.createAppointment)
		r.Get("/appointments/{id}", s.getAppointment)
		r.Get("/products/{slug}", s.getProduct)

		r.Get("/preferences", s.getPreferences)
		r.Put("/preferences/theme", s.setTheme)

		r.Get("/notifications", s.listNotifications)
		r.Delete("/notifications", s.drainNotifications)
		r.Post("/realtime/events", s.ingestEvent)
	})
	return r
}
