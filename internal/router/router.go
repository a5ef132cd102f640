package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/seralis/hermes/internal/admin"
	"github.com/seralis/hermes/internal/middleware"
	"github.com/seralis/hermes/internal/order"
	"github.com/seralis/hermes/internal/redis"
	"github.com/seralis/hermes/internal/server"
	"github.com/seralis/hermes/internal/wallet"
)

type Handlers struct {
	Wallet *wallet.WalletHandler
	Order  *order.OrderHandler
	Admin  *admin.AdminHandler
}

func NewRouter(s *server.Server, rdb *redis.Client, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	mw := middleware.NewMiddlewares(s)
	limiter := middleware.NewRateLimiter(rdb, s.Config.Redis.RateLimit, s.Config.Redis.RateWindow)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := "ok"
		code := http.StatusOK
		if valid, err := s.Store.ValidateIntegrity(); !valid || err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Limit)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Order.CreateOrder)
			r.Get("/", h.Order.ListOrders)
			r.Get("/{orderID}", h.Order.GetOrder)
			r.Post("/{orderID}/cancel", h.Order.CancelOrder)
			r.Post("/{orderID}/refund", h.Order.RefundOrder)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/services", h.Order.ListServices)
			r.Get("/countries", h.Order.ListCountries)
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/{userID}", h.Wallet.GetWallet)
			r.Get("/{userID}/history", h.Wallet.GetHistory)
		})

		r.Post("/deposits", h.Wallet.CreateDeposit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(s.Config.Server.AdminAPIKey))

			r.Get("/deposits", h.Admin.ListDeposits)
			r.Post("/deposits/{depositID}/approve", h.Admin.ApproveDeposit)
			r.Post("/credits", h.Admin.Credit)
			r.Get("/overview", h.Admin.Overview)
			r.Post("/backups", h.Admin.CreateBackup)
			r.Get("/backups", h.Admin.ListBackups)
			r.Post("/backups/{name}/restore", h.Admin.RestoreBackup)
			r.Get("/integrity", h.Admin.Integrity)
			r.Get("/provider/balance", h.Admin.ProviderBalance)
		})
	})

	return r
}
