package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"lims/internal/audit"
	"lims/internal/auth/revocation"
	"lims/internal/config"
	"lims/internal/database"
	"lims/internal/logger"
	"lims/internal/server"
	"lims/internal/services"
	"lims/internal/validator"
)

// @title           LIMS API
// @version         1.0
// @description     Laboratory information management API with an immutable audit trail for every change to users and reports.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	revocations, err := revocation.New(ctx, appConfig.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to initialize token revocation: %w", err)
	}

	// Audit pipeline
	db := dbManager.DB()
	auditStore := audit.NewStore(db)
	gateway := audit.NewGateway(db, audit.NewInterceptor(auditStore))
	recorder := audit.NewRecorder(auditStore)

	// Initialize services
	userService := services.NewUserService(db, gateway, recorder, revocations, services.LockoutPolicy{
		Threshold: appConfig.LockoutThreshold,
		Duration:  appConfig.LockoutDuration,
	})
	reportService := services.NewReportService(db, gateway, userService)
	auditService := services.NewAuditService(auditStore)

	router := server.NewRouter(server.Services{
		Users:       userService,
		Reports:     reportService,
		Audits:      auditService,
		Revocations: revocations,
	})

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           otelhttp.NewHandler(router, "lims-api"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Starting LIMS backend server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
