/**
 * @description
 * This is the main entry point for the tenancy service. It is responsible for
 * initializing all components of the service, including configuration, the
 * database connection pool, the vault watcher and directory clients, the
 * RabbitMQ producer, the repository, the core application service, the cron
 * scheduler, and the HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/vaultclient, pkg/directoryclient, pkg/rabbitmq: External collaborators.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentmates/tenancy-service/internal/api"
	"github.com/rentmates/tenancy-service/internal/app"
	"github.com/rentmates/tenancy-service/internal/config"
	"github.com/rentmates/tenancy-service/internal/store"
	"github.com/rentmates/tenancy-service/pkg/directoryclient"
	"github.com/rentmates/tenancy-service/pkg/rabbitmq"
	"github.com/rentmates/tenancy-service/pkg/vaultclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting tenancy-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish lifecycle events. Broker
	// unavailability degrades to the no-op fallback rather than blocking boot.
	var events rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		events = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		events = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external API clients.
	vaultClient := vaultclient.NewClient(cfg.VaultAPIBaseURL, cfg.VaultAPIKey)
	directoryClient := directoryclient.NewClient(cfg.DirectoryServiceURL, cfg.DirectoryAPIKey)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	policy := app.Policy{
		DepositMonths:        cfg.DepositMonths,
		RentGraceWindow:      cfg.RentGraceWindow(),
		TerminationHold:      cfg.TerminationHold(),
		AutoPayLeadTime:      cfg.AutoPayLeadTime(),
		MaxReconcileAttempts: cfg.MaxReconcileAttempts,
		ReconcileBatchLimit:  cfg.ReconcileBatchLimit,
	}
	service := app.NewService(repository, vaultClient, directoryClient, events, policy)

	// Start the cron scheduler for the background sweeps.
	jobLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(service, jobLogger)
	scheduler := app.NewScheduler(jobs, jobLogger, cfg)
	scheduler.Start()

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(service)
	router := api.NewRouter(handlers, cfg.JWTSecret, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let in-flight cron jobs finish before exiting.
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
