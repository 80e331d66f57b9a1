package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xela07ax/crm-approval-gateway/internal/audit"
	"github.com/xela07ax/crm-approval-gateway/internal/crm"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"github.com/xela07ax/crm-approval-gateway/internal/gateway"
	"github.com/xela07ax/crm-approval-gateway/internal/gateway/handler"
	"github.com/xela07ax/crm-approval-gateway/internal/gateway/service"
	"github.com/xela07ax/crm-approval-gateway/internal/infra"
	"github.com/xela07ax/crm-approval-gateway/internal/infra/auth"
	"github.com/xela07ax/crm-approval-gateway/internal/notify"
	"github.com/xela07ax/crm-approval-gateway/internal/policy"
	"github.com/xela07ax/crm-approval-gateway/internal/repository/postgres"
	"github.com/xela07ax/crm-approval-gateway/internal/workflow"
)

// instrumentedNotifier снимает счетчики терминальных исходов, не влезая в движок
type instrumentedNotifier struct {
	next    workflow.Notifier
	metrics *infra.Metrics
}

func (n *instrumentedNotifier) NotifyApprovers(req *domain.PendingRequest) {
	n.next.NotifyApprovers(req)
}

func (n *instrumentedNotifier) NotifyOutcome(req *domain.PendingRequest, out domain.Outcome) {
	n.metrics.WorkflowOutcomes.WithLabelValues(string(out.Status)).Inc()
	n.next.NotifyOutcome(req, out)
}

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин: cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Хранилища: Postgres для прода, RAM для локальной разработки
	var (
		requestStore  workflow.Store
		registryStore policy.Store
		auditStorage  audit.StorageInterface
	)
	if cfg.Database.Driver == "memory" {
		logger.Warn("running with in-memory storage: state will not survive restart")
		requestStore = workflow.NewMemoryStore()
		registryStore = policy.NewMemoryStore()
		auditStorage = audit.NewZapStorage(logger)
	} else {
		pool, err := postgres.NewPool(appCtx, cfg.Database)
		if err != nil {
			logger.Fatal("failed to create postgres pool", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(appCtx); err != nil {
			logger.Fatal("postgres is unreachable", zap.Error(err))
		}
		requestStore = postgres.NewRequestRepo(pool)
		registryStore = postgres.NewRegistryRepo(pool)
		auditStorage = postgres.NewAuditRepo(pool)
	}

	// 3. Redis: сигналы заморозки и доставка уведомлений
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(appCtx).Err(); err != nil {
		logger.Fatal("redis is unreachable", zap.Error(err))
	}
	defer rdb.Close()

	// 4. Метрики
	metrics := infra.NewMetrics(prometheus.DefaultRegisterer)

	// 5. Audit Trail (пакетная асинхронная запись)
	trail := audit.NewTrail(auditStorage, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval, logger)
	trail.Start()

	// 6. Реестры ролей и авторизация
	registry := policy.NewRegistry(registryStore, logger)
	if err := registry.Refresh(appCtx); err != nil {
		logger.Fatal("failed to load registries", zap.Error(err))
	}
	authorizer := policy.NewAuthorizer(registry)

	// 7. Control Plane: заморозка инициаторов
	freeze := gateway.NewFreezeManager(rdb, logger)
	if err := freeze.Init(appCtx); err != nil {
		logger.Fatal("failed to init freeze manager", zap.Error(err))
	}
	go freeze.StartListener(appCtx)

	// 8. Клиент Copper: бюджет -> HTTP -> Retries + Circuit Breaker
	budget := crm.NewBudget(cfg.CRM.RateLimit, cfg.CRM.RateWindow, crm.BudgetMode(cfg.CRM.RateMode))
	client := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, cfg.CRM.UserEmail, cfg.CRM.CallTimeout, budget, logger)
	invoker := crm.NewReliability(
		client,
		cfg.CRM.RetryAttempts,
		cfg.CRM.CBMaxRequests,
		cfg.CRM.CBInterval,
		cfg.CRM.CBTimeout,
		func(from, to gobreaker.State) {
			state := 0.0
			if to == gobreaker.StateOpen {
				state = 1.0
			}
			metrics.CircuitBreakerState.Set(state)
			logger.Warn("copper circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
		logger,
	)

	// 9. Уведомления (fire-and-forget через Redis Pub/Sub)
	dispatcher := notify.NewDispatcher(notify.NewRedisSink(rdb), cfg.Engine.NotifyBufferSize, logger)
	dispatcher.Start()
	notifier := &instrumentedNotifier{next: dispatcher, metrics: metrics}

	// 10. Движок согласования + проход восстановления
	quorum, err := workflow.NewQuorumPolicy(cfg.Engine.Quorum)
	if err != nil {
		logger.Fatal("invalid quorum policy", zap.Error(err))
	}
	engine := workflow.NewEngine(requestStore, invoker, notifier, quorum, logger)
	if err := engine.Recover(appCtx); err != nil {
		logger.Fatal("recovery pass failed", zap.Error(err))
	}

	// Гейджи заполненности буферов
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-ticker.C:
				metrics.AuditBufferFill.Set(float64(trail.Len()))
				metrics.NotifyBufferFill.Set(float64(dispatcher.Len()))
			}
		}
	}()

	// 11. Аутентификация: RS256 ключи
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)
	tokenService := service.NewTokenService(cfg.Auth.Clients, privateKey, cfg.Auth.TokenTTL)

	// 12. Сервис приема и HTTP-шлюз
	intake := service.NewIntakeService(registry, authorizer, freeze, engine, invoker, trail, metrics, logger)

	srv := gateway.NewServer(
		cfg.Server,
		logger,
		validator,
		handler.NewAuthHandler(tokenService),
		handler.NewRequestsHandler(intake, engine),
		handler.NewDecisionsHandler(engine),
		handler.NewRegistryHandler(registry, freeze),
	)

	// 13. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые контуры и дожимаем буферы
	cancel()
	dispatcher.Stop()
	trail.Stop()

	logger.Info("gateway exited properly")
}
