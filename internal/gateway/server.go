package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/gateway/handler"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	srv    *http.Server
	logger *zap.Logger

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler      *handler.AuthHandler      // /auth/token
	requestsHandler  *handler.RequestsHandler  // /v1/requests (Submit + Queue)
	decisionsHandler *handler.DecisionsHandler // /v1/requests/{id}/decide (HITL)
	registryHandler  *handler.RegistryHandler  // /v1/approvers, /v1/admins, /v1/mappings
}

// NewServer инициализирует HTTP-шлюз со всеми зависимостями
func NewServer(
	cfg infra.ServerConfig,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	requestsH *handler.RequestsHandler,
	decisionsH *handler.DecisionsHandler,
	registryH *handler.RegistryHandler,
) *Server {
	s := &Server{
		router:           chi.NewRouter(),
		logger:           logger.Named("gateway-api"),
		authValidator:    validator,
		authHandler:      authH,
		requestsHandler:  requestsH,
		decisionsHandler: decisionsH,
		registryHandler:  registryH,
	}
	s.routes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(infra.TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Выдача токенов транспортам должна быть доступна без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Prometheus scrape endpoint
		r.Handle("/metrics", promhttp.Handler())
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Прием мутаций и очередь согласования
		r.Route("/v1/requests", func(r chi.Router) {
			r.With(auth.RequireScope(domain.ScopeSubmit)).
				Post("/", s.requestsHandler.Submit)

			r.With(auth.RequireScope(domain.ScopeDecide)).
				Get("/pending", s.requestsHandler.Pending)

			r.Route("/{id}", func(r chi.Router) {
				r.With(auth.RequireScope(domain.ScopeDecide)).
					Get("/", s.requestsHandler.Get)
				r.With(auth.RequireScope(domain.ScopeDecide)).
					Post("/decide", s.decisionsHandler.Decide) // Approve/Reject + исполнение
			})
		})

		// Администрирование реестров (scope + админская роль внутри хендлера)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeRegistry))

			r.Get("/v1/approvers", s.registryHandler.ListApprovers)
			r.Route("/v1/approvers/{id}", func(r chi.Router) {
				r.Put("/", s.registryHandler.AddApprover)
				r.Delete("/", s.registryHandler.RemoveApprover)
			})

			r.Route("/v1/admins/{id}", func(r chi.Router) {
				r.Put("/", s.registryHandler.AddAdmin)
				r.Delete("/", s.registryHandler.RemoveAdmin)
			})

			r.Route("/v1/mappings/{chatID}", func(r chi.Router) {
				r.Get("/", s.registryHandler.GetMapping)
				r.Put("/", s.registryHandler.SetMapping)
			})

			// Стоп-кран по инициаторам
			r.Post("/v1/requesters/{id}/freeze", s.registryHandler.Freeze)
			r.Post("/v1/requesters/{id}/unfreeze", s.registryHandler.Unfreeze)
		})
	})
}

// Run блокируется до остановки сервера
func (s *Server) Run() error {
	s.logger.Info("gateway listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown мягко гасит сервер, дожидаясь запросов в полете
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
