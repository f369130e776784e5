package cmd

import (
	"os"
	"time"

	"example.com/fightbook/services/events/config"
	"example.com/fightbook/services/events/internal/cache"
	"example.com/fightbook/services/events/internal/clock"
	"example.com/fightbook/services/events/internal/metrics"
	"example.com/fightbook/services/events/internal/repositories"
	"example.com/fightbook/services/events/internal/services"
	"example.com/fightbook/services/events/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	generateFrom      string
	generateTo        string
	generatePreview   bool
	generateTemplates []string
	generateLookAhead int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one event generation batch",
	Long: `Run a single event generation batch over a date window and exit.
With --preview the would-be events are computed but nothing is persisted.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateFrom, "from", "", "window start date (YYYY-MM-DD)")
	generateCmd.Flags().StringVar(&generateTo, "to", "", "window end date (YYYY-MM-DD), inclusive")
	generateCmd.Flags().BoolVar(&generatePreview, "preview", false, "compute without persisting")
	generateCmd.Flags().StringSliceVar(&generateTemplates, "templates", nil, "restrict to these template IDs")
	generateCmd.Flags().IntVar(&generateLookAhead, "look-ahead", 0, "generate from today for this many days (overrides --from/--to)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	templateRepo := repositories.NewTemplateRepository(db, readOnlyDB)
	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	clk := clock.NewSystem()
	generationService := services.NewGenerationService(
		templateRepo, eventRepo, redisCache, nil, nil,
		metrics.NewMetrics(), tracer, clk)

	req := services.GenerateRequest{PreviewOnly: generatePreview}

	switch {
	case generateLookAhead > 0:
		today := clk.Now().Truncate(24 * time.Hour)
		req.StartDate = today
		req.EndDate = today.AddDate(0, 0, generateLookAhead)
	case generateFrom != "" && generateTo != "":
		req.StartDate, err = time.ParseInLocation("2006-01-02", generateFrom, time.UTC)
		if err != nil {
			return errors.Wrap(err, "invalid --from date")
		}
		req.EndDate, err = time.ParseInLocation("2006-01-02", generateTo, time.UTC)
		if err != nil {
			return errors.Wrap(err, "invalid --to date")
		}
	default:
		return errors.New("either --look-ahead or both --from and --to are required")
	}

	for _, raw := range generateTemplates {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid template ID %q", raw)
		}
		req.TemplateIDs = append(req.TemplateIDs, id)
	}

	result, err := generationService.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	for _, ev := range result.Events {
		log.Info().
			Str("template", ev.TemplateName).
			Str("venue", ev.VenueName).
			Str("title", ev.Event.Title).
			Time("date", ev.Event.Date).
			Int("tickets", len(ev.Tickets)).
			Bool("preview", result.PreviewOnly).
			Msg("Occurrence")
	}

	log.Info().
		Int("generated", result.GeneratedCount).
		Int("templates_processed", result.TemplatesProcessed).
		Bool("preview", result.PreviewOnly).
		Msg("Generation batch complete")

	return nil
}
