package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inventra/inventra/cmd/inventra/cli"
	"github.com/inventra/inventra/internal/app"
	"github.com/inventra/inventra/internal/audit"
	"github.com/inventra/inventra/internal/auth"
	"github.com/inventra/inventra/internal/customers"
	"github.com/inventra/inventra/internal/dashboard"
	"github.com/inventra/inventra/internal/fulfillment"
	"github.com/inventra/inventra/internal/inventory"
	"github.com/inventra/inventra/internal/notifications"
	"github.com/inventra/inventra/internal/observability"
	"github.com/inventra/inventra/internal/orders"
	"github.com/inventra/inventra/internal/platform/cache"
	"github.com/inventra/inventra/internal/platform/db"
	"github.com/inventra/inventra/internal/products"
	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/redirection"
	"github.com/inventra/inventra/internal/shared"
	"github.com/inventra/inventra/internal/users"
	"github.com/inventra/inventra/jobs"
)

const dashboardCacheTTL = 5 * time.Minute

func main() {
	command, args := app.ResolveCommand(os.Args[1:])
	switch command {
	case app.CommandSkip:
		slog.Default().Info("test mode detected, skipping server startup")
		return
	case app.CommandUnknown:
		fmt.Fprintf(os.Stderr, "usage: inventra [serve | jobs <trigger|stats|scheduled>]\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "api")

	if command == app.CommandJobs {
		if err := runJobs(ctx, cfg, args, os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, "inventra-api")
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	guard := rbac.Middleware{Logger: logger}
	auditLogger := shared.NewAuditLogger(pool)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	publisher := notifications.NewRedisPublisher(redisClient, logger)
	notificationService := notifications.NewService(notifications.NewRepository(pool), publisher, jobClient, metrics, logger)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, logger)
	authService := auth.NewService(userService, auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL), auth.NewRevocations(redisClient))

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, notificationService, logger)

	productRepo := products.NewRepository(pool)
	productService := products.NewService(productRepo, auditLogger, notificationService,
		cache.NewVersioned(redisClient, "products", cfg.ExportCacheTTL), logger)

	customerService := customers.NewService(customers.NewRepository(pool), auditLogger, logger)

	orderService := orders.NewService(orders.Deps{
		Repo:      orders.NewRepository(pool),
		Tx:        orders.NewStore(pool, shared.NewIdempotencyStore(pool), cfg.DBTxMaxAttempts),
		Agents:    userService,
		Customers: customerService,
		Products:  productRepo,
		Parts:     inventoryRepo,
		Notifier:  notificationService,
		Observer:  metrics,
		Audit:     auditLogger,
		Pricer:    fulfillment.Pricer{Symmetric: cfg.SymmetricBOMDiff},
		Logger:    logger,
	})
	orderHandler := orders.NewHandler(logger, orderService, guard)

	dashboardService := dashboard.NewService(dashboard.NewRepository(pool),
		cache.NewVersioned(redisClient, "dashboard", dashboardCacheTTL), logger)

	redirectionHandler := redirection.NewHandler(logger,
		redirection.NewService(redirection.NewRepository(pool), cfg.FrontendURL), guard)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		Authenticate:         authService.Middleware(logger),
		AuthHandler:          auth.NewHandler(logger, authService, userService, guard),
		OrdersHandler:        orderHandler,
		InventoryHandler:     inventory.NewHandler(logger, inventoryService, guard),
		ProductsHandler:      products.NewHandler(logger, productService, guard),
		CustomersHandler:     customers.NewHandler(logger, customerService, guard),
		UsersHandler:         users.NewHandler(logger, userService, guard),
		NotificationsHandler: notifications.NewHandler(logger, notificationService, publisher, guard),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService, guard),
		AuditHandler:         audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), guard),
		RedirectionHandler:   redirectionHandler,
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	// Notifications of orders committed just before shutdown still go out.
	orderHandler.Wait()
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, out io.Writer) error {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	return cli.NewJobsCLI(client, inspector).Run(ctx, args, out)
}
