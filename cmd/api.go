package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/fightbook/services/events/config"
	"example.com/fightbook/services/events/internal/api"
	"example.com/fightbook/services/events/internal/cache"
	"example.com/fightbook/services/events/internal/clock"
	"example.com/fightbook/services/events/internal/messaging"
	"example.com/fightbook/services/events/internal/metrics"
	"example.com/fightbook/services/events/internal/models"
	"example.com/fightbook/services/events/internal/repositories"
	"example.com/fightbook/services/events/internal/search"
	"example.com/fightbook/services/events/internal/services"
	"example.com/fightbook/services/events/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server exposing event generation, preview and listing endpoints`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	var indexer services.EventIndexer
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
	} else {
		indexer = elasticClient
	}

	// Initialize Service Bus publisher
	var publisher services.EventPublisher
	if cfg.Azure.QueueConnStr != "" {
		busClient, err := messaging.NewServiceBusClient(cfg.Azure)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus client, continuing without publishing")
		} else {
			publisher = busClient
			defer busClient.Close()
		}
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories and services
	templateRepo := repositories.NewTemplateRepository(db, readOnlyDB)
	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	generationService := services.NewGenerationService(
		templateRepo, eventRepo, redisCache, indexer, publisher,
		metricsCollector, tracer, clock.NewSystem())

	// Initialize and start the server
	server := api.NewServer(cfg, generationService, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, readOnlyDB, nil
}
