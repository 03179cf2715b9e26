package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	red "telegram-image-ai/internal/infra/redis"
	"telegram-image-ai/internal/usecase"
)

type Server struct {
	dispatcherUC usecase.DispatcherUseCase
	ledgerUC     usecase.LedgerUseCase
	paymentUC    usecase.PaymentUseCase
	statsUC      usecase.StatsUseCase
	auth         *AuthManager
	adminKey     string
	rateLimiter  *red.RateLimiter
	log          *zerolog.Logger
}

func NewServer(
	dispatcherUC usecase.DispatcherUseCase,
	ledgerUC usecase.LedgerUseCase,
	paymentUC usecase.PaymentUseCase,
	statsUC usecase.StatsUseCase,
	auth *AuthManager,
	adminKey string,
	rateLimiter *red.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		dispatcherUC: dispatcherUC,
		ledgerUC:     ledgerUC,
		paymentUC:    paymentUC,
		statsUC:      statsUC,
		auth:         auth,
		adminKey:     adminKey,
		rateLimiter:  rateLimiter,
		log:          logger,
	}
}

// Router builds the full HTTP surface. The payment webhook and the probes
// stay outside auth; everything under /api/v1 past the login exchange
// requires an admin session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/payment", s.handlePaymentWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/accounts/{userID}", func(r chi.Router) {
				r.Get("/balance", s.handleBalance)
				r.Get("/ledger", s.handleLedgerHistory)
				r.Post("/adjust", s.handleAdminAdjust)
				r.Get("/jobs", s.handleListJobs)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.handleSubmitJob)
				r.Get("/{jobID}", s.handleJobStatus)
				r.Delete("/{jobID}", s.handleCancelJob)
			})

			r.Get("/packages", s.handlePackages)
			r.Post("/payments", s.handleInitiatePayment)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
