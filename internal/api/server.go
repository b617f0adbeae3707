// Package api maps the AeonPay operations onto a JSON HTTP surface.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/pipphxntom/AeonPay/internal/auth"
	"github.com/pipphxntom/AeonPay/internal/config"
	"github.com/pipphxntom/AeonPay/internal/database"
	"github.com/pipphxntom/AeonPay/internal/repository"
	"github.com/pipphxntom/AeonPay/internal/service"
)

// Server wires the engines to their routes.
type Server struct {
	log *slog.Logger
	db  *database.DB

	plans    *service.Plans
	vouchers *service.Vouchers
	mandates *service.Mandates
	payments *service.Payments
	ledger   *service.Ledger

	users     *repository.UserRepository
	merchants *repository.MerchantRepository

	auth    *auth.Service
	idem    responseCache
	limiter *rate.Limiter
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, log *slog.Logger, db *database.DB,
	plans *service.Plans, vouchers *service.Vouchers, mandates *service.Mandates,
	payments *service.Payments, ledger *service.Ledger,
	authSvc *auth.Service, idem responseCache) *Server {
	return &Server{
		log:       log,
		db:        db,
		plans:     plans,
		vouchers:  vouchers,
		mandates:  mandates,
		payments:  payments,
		ledger:    ledger,
		users:     repository.NewUserRepository(),
		merchants: repository.NewMerchantRepository(),
		auth:      authSvc,
		idem:      idem,
		limiter:   rate.NewLimiter(rate.Limit(cfg.App.RateLimitRPS), cfg.App.RateLimitBurst),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.httpLogger)
	r.Use(s.rateLimit)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"service":  "aeonpay",
			"hostname": hostname,
		})
	})

	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Postgres.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "error", "message": "postgres unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "postgres": "connected"})
	})

	// The double-entry invariant must hold after every operation; exposing
	// it makes drift visible to ops immediately.
	r.Get("/health/ledger", func(w http.ResponseWriter, r *http.Request) {
		balanced, err := s.ledger.IsBalanced(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if !balanced {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]bool{"balanced": balanced})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(s.idempotencyMiddleware).Post("/auth/mock_login", s.handleMockLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Use(s.idempotencyMiddleware)

			r.Route("/plans", func(r chi.Router) {
				r.Post("/", s.handleCreatePlan)
				r.Get("/", s.handleListPlans)
				r.Get("/{plan_id}", s.handleGetPlan)
			})

			r.Route("/vouchers", func(r chi.Router) {
				r.Post("/mint", s.handleMintVouchers)
				r.Post("/redeem", s.handleRedeemVouchers)
				r.Get("/plan/{plan_id}", s.handlePlanVouchers)
				r.Get("/{voucher_id}/redemptions", s.handleVoucherRedemptions)
			})

			r.Route("/mandates", func(r chi.Router) {
				r.Post("/create", s.handleCreateMandates)
				r.Post("/execute", s.handleExecuteMandate)
				r.Get("/plan/{plan_id}", s.handlePlanMandates)
				r.Get("/{mandate_id}/executions", s.handleMandateExecutions)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/intent", s.handleCreateIntent)
				r.Post("/confirm", s.handleConfirmPayment)
				r.Get("/intent/{intent_id}", s.handleGetIntent)
				r.Get("/transactions", s.handleListTransactions)
			})

			r.Route("/merchants", func(r chi.Router) {
				r.Get("/", s.handleListMerchants)
				r.Get("/{merchant_id}", s.handleGetMerchant)
			})

			r.Get("/me", s.handleMe)
		})
	})

	return r
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"kind":"validation","reason":"rate limit exceeded"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}
