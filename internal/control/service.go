package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/purchasekit/internal/core/config"
	"github.com/vietddude/purchasekit/internal/core/domain"
	"github.com/vietddude/purchasekit/internal/core/worker"
	"github.com/vietddude/purchasekit/internal/health"
	"github.com/vietddude/purchasekit/internal/infra/appstore"
	"github.com/vietddude/purchasekit/internal/infra/orderapi"
	redisclient "github.com/vietddude/purchasekit/internal/infra/redis"
	"github.com/vietddude/purchasekit/internal/infra/storage"
	"github.com/vietddude/purchasekit/internal/infra/storage/memory"
	"github.com/vietddude/purchasekit/internal/infra/storage/postgres"
	"github.com/vietddude/purchasekit/internal/infra/validation"
	"github.com/vietddude/purchasekit/internal/monitor"
	"github.com/vietddude/purchasekit/internal/order"
	"github.com/vietddude/purchasekit/internal/recovery"
	"github.com/vietddude/purchasekit/internal/retry"
)

// Service is the main application struct that manages the purchase
// reliability pipeline lifecycle.
type Service struct {
	cfg          *config.AppConfig
	store        appstore.Adapter
	retries      *retry.Manager
	orders       *order.Service
	mon          *monitor.Monitor
	rec          *recovery.Manager
	janitor      *worker.Janitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
}

// NewService creates a new Service instance with all dependencies initialized.
func NewService(cfg *config.AppConfig) (*Service, error) {

	// 1. Initialize Storage
	var orderRepo storage.OrderRepository
	var sweepRepo storage.SweepRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		orderRepo = postgres.NewOrderRepo(db)
		sweepRepo = postgres.NewSweepRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		memStore := memory.NewStore()
		orderRepo = memory.NewOrderRepo(memStore)
		sweepRepo = memory.NewSweepRepo(memStore)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Purchase Store
	var catalog []domain.Product
	for _, p := range cfg.Store.Products {
		catalog = append(catalog, domain.Product{
			ID:       p.ID,
			Title:    p.Title,
			Price:    p.Price,
			Currency: p.Currency,
		})
	}
	store := appstore.NewSimAdapter(catalog)

	// 3. Initialize Redis
	var redisClient *redisclient.Client
	var ledger recovery.FinishLedger
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, finish dedupe disabled", "error", err)
		} else {
			ledger = redisClient
		}
	}

	// 4. Initialize Core Components
	retries := retry.NewManager(cfg.Retry)
	orderClient := orderapi.NewClient(cfg.Orders)
	orders := order.NewService(orderClient, retries, orderRepo)
	validator := validation.NewHTTPValidator(cfg.Validator)

	rec := recovery.NewManager(cfg.Recovery, store, orders, validator, retries, ledger, sweepRepo)
	mon := monitor.NewMonitor(cfg.Monitor, store, rec)
	janitor := worker.NewJanitor(cfg.Janitor.Interval, cfg.Janitor.Retention, orders, orderRepo)

	// 5. Initialize Health Server
	checker := health.NewChecker(mon, rec, retries)
	if db != nil {
		checker.AddPinger("database", dbPinger{db})
	}
	if redisClient != nil {
		checker.AddPinger("redis", redisClient)
	}
	healthServer := health.NewServer(checker, cfg.Server.Port)

	return &Service{
		cfg:          cfg,
		store:        store,
		retries:      retries,
		orders:       orders,
		mon:          mon,
		rec:          rec,
		janitor:      janitor,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Store exposes the purchase store adapter for the dev binary.
func (s *Service) Store() appstore.Adapter { return s.store }

// Recovery exposes the recovery manager for the dev binary.
func (s *Service) Recovery() *recovery.Manager { return s.rec }

// Start starts the service and all its components.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if s.db != nil {
		s.db.StartMetricsCollector(runCtx)
	}

	// Start Recovery Loop
	go func() {
		if err := s.rec.Run(runCtx); err != nil {
			s.log.Error("Recovery loop failed", "error", err)
		}
	}()

	// Start Janitor
	go s.janitor.Start(runCtx)

	// Start Transaction Monitor
	if err := s.mon.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	return nil
}

// Stop stops the service.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	if err := s.mon.Stop(); err != nil {
		s.log.Warn("Failed to stop monitor", "error", err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Stop Health Server
	return s.healthServer.Stop(ctx)
}

// dbPinger adapts the postgres health check to the Pinger interface.
type dbPinger struct {
	db *postgres.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.Health(ctx)
}
