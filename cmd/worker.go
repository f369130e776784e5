package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/fightbook/services/events/config"
	"example.com/fightbook/services/events/internal/cache"
	"example.com/fightbook/services/events/internal/clock"
	"example.com/fightbook/services/events/internal/messaging"
	"example.com/fightbook/services/events/internal/metrics"
	"example.com/fightbook/services/events/internal/repositories"
	"example.com/fightbook/services/events/internal/search"
	"example.com/fightbook/services/events/internal/services"
	"example.com/fightbook/services/events/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that periodically materializes upcoming events from active recurring templates`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := initDatabasesForWorker(cfg)
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

	// Start the scheduled generation job
	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Generation.WorkerInterval).
			Int("look_ahead_days", cfg.Generation.LookAheadDays).
			Msg("Starting scheduled event generation job")

		// Create a scheduler
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Generation.WorkerInterval),
			gocron.NewTask(func() {
				runScheduledGeneration(ctx, cfg, generationService, redisCache)
			}),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// runScheduledGeneration runs one generation batch under the Redis batch
// lock, so a concurrently running manual trigger or a second worker
// instance cannot interleave with it.
func runScheduledGeneration(ctx context.Context, cfg config.Config, generationService *services.GenerationService, redisCache *cache.RedisCache) {
	if redisCache != nil {
		acquired, err := redisCache.AcquireLock(ctx, cache.GenerationLockKey, cfg.Generation.LockTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to acquire generation lock, skipping run")
			return
		}
		if !acquired {
			log.Info().Msg("Generation lock held elsewhere, skipping run")
			return
		}
		defer func() {
			if err := redisCache.ReleaseLock(ctx, cache.GenerationLockKey); err != nil {
				log.Warn().Err(err).Msg("Failed to release generation lock")
			}
		}()
	}

	result, err := generationService.GenerateUpcomingEvents(ctx, cfg.Generation.LookAheadDays)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled event generation failed")
		return
	}

	log.Info().
		Int("generated", result.GeneratedCount).
		Int("templates_processed", result.TemplatesProcessed).
		Msg("Scheduled event generation finished")
}

func initDatabasesForWorker(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}

	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}

	// Higher limits for read operations
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(time.Hour)

	return db, readOnlyDB, nil
}
