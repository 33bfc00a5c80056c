package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter registers every endpoint on a chi router.
func NewRouter(svc Services, allowedOrigins []string, log *zap.Logger) http.Handler {
	h := NewHandler(svc, allowedOrigins, log.Named("http"))
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderUserID, HeaderAdminID},
		ExposedHeaders:   []string{"Retry-After", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// authenticated by signature, not by identity headers
	r.Post("/payments/paytr/callback", h.PayTRCallbackHandler)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)

		r.Get("/wallet", h.GetWalletHandler)
		r.Get("/wallet/transactions", h.ListTransactionsHandler)

		r.Post("/deposits", h.InitDepositHandler)
		r.Route("/deposits/{id}", func(r chi.Router) {
			r.Use(h.uuidParam("id"))
			r.Get("/", h.GetDepositHandler)
			r.Get("/stream", h.DepositStreamHandler)
		})

		r.Post("/orders", h.CreateOrderHandler)
		r.Route("/orders/{id}", func(r chi.Router) {
			r.Use(h.uuidParam("id"))
			r.Get("/", h.GetOrderHandler)
			r.Post("/confirm", h.ConfirmDeliveryHandler)
			r.Post("/disputes", h.OpenDisputeHandler)
		})

		r.With(h.uuidParam("id")).Get("/disputes/{id}", h.GetDisputeHandler)

		r.Post("/withdrawals", h.RequestWithdrawalHandler)
		r.Route("/withdrawals/{id}", func(r chi.Router) {
			r.Use(h.uuidParam("id"))
			r.Get("/", h.GetWithdrawalHandler)
			r.Post("/cancel", h.CancelWithdrawalHandler)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)

		r.With(h.uuidParam("id")).Post("/disputes/{id}/resolve", h.ResolveDisputeHandler)

		r.Get("/withdrawals", h.ListWithdrawalsHandler)
		r.Route("/withdrawals/{id}", func(r chi.Router) {
			r.Use(h.uuidParam("id"))
			r.Post("/approve", h.ApproveWithdrawalHandler)
			r.Post("/reject", h.RejectWithdrawalHandler)
			r.Post("/paid", h.MarkWithdrawalPaidHandler)
		})

		r.Get("/wallets/{userId}/reconcile", h.ReconcileHandler)
	})

	return r
}
