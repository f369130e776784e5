package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/fightbook/services/events/internal/cache"
	"example.com/fightbook/services/events/internal/clock"
	"example.com/fightbook/services/events/internal/metrics"
	"example.com/fightbook/services/events/internal/models"
	"example.com/fightbook/services/events/internal/recurrence"
	"example.com/fightbook/services/events/internal/tracing"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// fallbackVenueName is substituted for {venue} when the venue is unknown.
const fallbackVenueName = "Venue"

// TemplateRepository is the read side of the template store
type TemplateRepository interface {
	ListActive(ctx context.Context) ([]models.EventTemplate, error)
	ListActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.EventTemplate, error)
}

// EventRepository is the event store boundary used by generation
type EventRepository interface {
	ExistsForOccurrence(ctx context.Context, templateID uuid.UUID, date time.Time, venueID uuid.UUID) (bool, error)
	CreateWithTickets(ctx context.Context, event *models.Event, tickets []models.TicketInventory) error
	ListBetween(ctx context.Context, start, end time.Time) ([]models.Event, error)
}

// EventIndexer indexes generated events for the admin search screens
type EventIndexer interface {
	IndexEvent(ctx context.Context, event *models.Event, venueName, regionName string) error
}

// EventPublisher notifies downstream consumers about generated events
type EventPublisher interface {
	SendMessage(ctx context.Context, body interface{}) error
}

// GenerateRequest is the invocation shape accepted by Generate. When
// TemplateIDs is empty, all active templates are eligible.
type GenerateRequest struct {
	StartDate   time.Time
	EndDate     time.Time
	TemplateIDs []uuid.UUID
	PreviewOnly bool
}

// GeneratedEvent pairs a generated (or previewed) event with its ticket
// inventory and denormalized display names.
type GeneratedEvent struct {
	Event        models.Event             `json:"event"`
	Tickets      []models.TicketInventory `json:"tickets"`
	VenueName    string                   `json:"venue_name"`
	RegionName   string                   `json:"region_name"`
	TemplateName string                   `json:"template_name"`
}

// GenerateResult is the outcome of one generation batch
type GenerateResult struct {
	Events             []GeneratedEvent `json:"events"`
	GeneratedCount     int              `json:"generated_count"`
	TemplatesProcessed int              `json:"templates_processed"`
	PreviewOnly        bool             `json:"preview_only"`
}

// GenerationService materializes concrete events from recurring event
// templates. Candidates whose (template, date, venue) triple already has
// an event are skipped, so re-running a batch over an overlapping window
// never duplicates events.
type GenerationService struct {
	templateRepo TemplateRepository
	eventRepo    EventRepository
	cache        *cache.RedisCache
	indexer      EventIndexer
	publisher    EventPublisher
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
	clock        clock.Clock
}

// NewGenerationService creates a new generation service. Indexer,
// publisher, cache, metrics and tracer are optional side channels; a nil
// value disables the corresponding integration.
func NewGenerationService(
	templateRepo TemplateRepository,
	eventRepo EventRepository,
	redisCache *cache.RedisCache,
	indexer EventIndexer,
	publisher EventPublisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	clk clock.Clock,
) *GenerationService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &GenerationService{
		templateRepo: templateRepo,
		eventRepo:    eventRepo,
		cache:        redisCache,
		indexer:      indexer,
		publisher:    publisher,
		metrics:      metricsCollector,
		tracer:       tracer,
		clock:        clk,
	}
}

// Generate expands every eligible template over the requested window and
// materializes the occurrences that do not exist yet. In preview mode the
// would-be events are returned without any side effects.
//
// Failure to load the template set is fatal for the batch; everything
// past that point is per-candidate recoverable (logged and skipped).
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	txn := s.startTransaction("generate-events")
	defer s.endTransaction(txn)

	started := time.Now()

	var (
		templates []models.EventTemplate
		err       error
	)
	if len(req.TemplateIDs) > 0 {
		templates, err = s.templateRepo.ListActiveByIDs(ctx, req.TemplateIDs)
	} else {
		templates, err = s.templateRepo.ListActive(ctx)
	}
	if err != nil {
		s.recordError(txn, err)
		return nil, errors.Wrap(err, "failed to load active templates")
	}

	result := &GenerateResult{PreviewOnly: req.PreviewOnly}
	for i := range templates {
		result.TemplatesProcessed++
		s.generateForTemplate(ctx, txn, &templates[i], req, result)
	}

	if s.metrics != nil {
		s.metrics.RecordTimer(metrics.TimerGenerationBatch, time.Since(started).Milliseconds())
	}

	log.Info().
		Int("templates_processed", result.TemplatesProcessed).
		Int("generated", result.GeneratedCount).
		Bool("preview", req.PreviewOnly).
		Msg("Generation batch finished")

	return result, nil
}

// GenerateUpcomingEvents materializes events for the next lookAheadDays
// days starting today. This is the entry point used by the scheduled
// worker job; it never previews and applies no template filter.
func (s *GenerationService) GenerateUpcomingEvents(ctx context.Context, lookAheadDays int) (*GenerateResult, error) {
	today := dateOnly(s.clock.Now())
	return s.Generate(ctx, GenerateRequest{
		StartDate:   today,
		EndDate:     today.AddDate(0, 0, lookAheadDays),
		PreviewOnly: false,
	})
}

func (s *GenerationService) generateForTemplate(ctx context.Context, txn *newrelic.Transaction, tpl *models.EventTemplate, req GenerateRequest, result *GenerateResult) {
	span := s.startSpan("expand-template", txn)
	rule, err := ruleFromTemplate(tpl)
	if err != nil {
		// Misconfigured template; the rest of the batch continues.
		log.Warn().Err(err).
			Str("template_id", tpl.ID.String()).
			Str("template_name", tpl.Name).
			Msg("Skipping template with invalid recurrence configuration")
		s.recordError(txn, err)
		s.endSpan(span)
		return
	}
	candidates := recurrence.Expand(rule, req.StartDate, req.EndDate)
	s.endSpan(span)

	for _, occ := range candidates {
		exists, err := s.eventRepo.ExistsForOccurrence(ctx, tpl.ID, occ.Date, tpl.VenueID)
		if err != nil {
			log.Error().Err(err).
				Str("template_id", tpl.ID.String()).
				Time("date", occ.Date).
				Msg("Failed to check for existing event, skipping candidate")
			s.recordError(txn, err)
			s.incrementCounter(metrics.CounterGenerationErrors)
			continue
		}
		if exists {
			s.incrementCounter(metrics.CounterCandidatesSkipped)
			continue
		}

		event, tickets := buildEvent(tpl, occ)

		if !req.PreviewOnly {
			span := s.startSpan("persist-event", txn)
			err := s.eventRepo.CreateWithTickets(ctx, &event, tickets)
			s.endSpan(span)
			if err != nil {
				// Includes unique index violations from a racing run.
				log.Error().Err(err).
					Str("template_id", tpl.ID.String()).
					Time("date", occ.Date).
					Msg("Failed to persist event, skipping candidate")
				s.recordError(txn, err)
				s.incrementCounter(metrics.CounterGenerationErrors)
				continue
			}
			result.GeneratedCount++
			s.incrementCounter(metrics.CounterEventsGenerated)

			s.indexEvent(ctx, &event, tpl)
			s.publishEvent(ctx, &event)

			log.Info().
				Str("event_id", event.ID.String()).
				Str("template_id", tpl.ID.String()).
				Time("date", occ.Date).
				Int("tickets", len(tickets)).
				Msg("Event generated")
		}

		result.Events = append(result.Events, GeneratedEvent{
			Event:        event,
			Tickets:      tickets,
			VenueName:    tpl.Venue.Name,
			RegionName:   tpl.Region.Name,
			TemplateName: tpl.Name,
		})
	}
}

// indexEvent is best effort: a search outage must not fail generation.
func (s *GenerationService) indexEvent(ctx context.Context, event *models.Event, tpl *models.EventTemplate) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexEvent(ctx, event, tpl.Venue.Name, tpl.Region.Name); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to index generated event")
	}
}

// EventGeneratedMessage is the payload published for each persisted event
type EventGeneratedMessage struct {
	EventID    uuid.UUID  `json:"event_id"`
	TemplateID *uuid.UUID `json:"template_id"`
	VenueID    uuid.UUID  `json:"venue_id"`
	Title      string     `json:"title"`
	Date       string     `json:"date"`
	StartTime  time.Time  `json:"start_time"`
}

// publishEvent is best effort, same as indexing.
func (s *GenerationService) publishEvent(ctx context.Context, event *models.Event) {
	if s.publisher == nil {
		return
	}
	msg := EventGeneratedMessage{
		EventID:    event.ID,
		TemplateID: event.TemplateID,
		VenueID:    event.VenueID,
		Title:      event.Title,
		Date:       event.Date.Format("2006-01-02"),
		StartTime:  event.StartTime,
	}
	if err := s.publisher.SendMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to publish generated event")
	}
}

// ListEvents returns events in [start, end] for the admin calendar view,
// with a short-lived cache in front of the read-only database.
func (s *GenerationService) ListEvents(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	key := fmt.Sprintf("events:list:%s:%s", start.Format("2006-01-02"), end.Format("2006-01-02"))

	if s.cache != nil {
		var cached []models.Event
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	events, err := s.eventRepo.ListBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, events, 30*time.Second); err != nil {
			log.Debug().Err(err).Msg("Failed to cache event listing")
		}
	}

	return events, nil
}

// ruleFromTemplate normalizes a template's loosely shaped recurrence
// fields into a strict rule. A malformed start time is an error; a
// malformed end time only drops the end time. Legacy rows with an empty
// recurrence type behave as non-recurring.
func ruleFromTemplate(tpl *models.EventTemplate) (recurrence.Rule, error) {
	start, err := recurrence.ParseTimeOfDay(tpl.DefaultStartTime)
	if err != nil {
		return recurrence.Rule{}, errors.Wrap(err, "invalid default start time")
	}

	recurrenceType := tpl.RecurrenceType
	if recurrenceType == "" {
		recurrenceType = models.RecurrenceNone
	}

	rule := recurrence.Rule{
		Type:      recurrence.Type(recurrenceType),
		StartTime: start,
		StartDate: tpl.StartDate,
		EndDate:   tpl.EndDate,
	}

	if tpl.DefaultEndTime != nil {
		if end, err := recurrence.ParseTimeOfDay(*tpl.DefaultEndTime); err == nil {
			rule.EndTime = &end
		} else {
			log.Warn().Err(err).Str("template_id", tpl.ID.String()).Msg("Ignoring malformed default end time")
		}
	}

	switch rule.Type {
	case recurrence.Weekly:
		rule.DaysOfWeek = recurrence.ParseDaySet(tpl.RecurringDaysOfWeek)
	case recurrence.Monthly:
		rule.DaysOfMonth = recurrence.ParseDaySet(tpl.DaysOfMonth)
	}

	return rule, nil
}

// buildEvent constructs the event and ticket inventory rows for one
// occurrence, copying the template's defaults.
func buildEvent(tpl *models.EventTemplate, occ recurrence.Occurrence) (models.Event, []models.TicketInventory) {
	description := ""
	if tpl.DefaultDescription != nil {
		description = *tpl.DefaultDescription
	}

	templateID := tpl.ID
	event := models.Event{
		ID:                uuid.New(),
		TemplateID:        &templateID,
		Title:             FormatTitle(tpl.DefaultTitleFormat, tpl.Venue.Name, occ.Start),
		Description:       description,
		Date:              occ.Date,
		StartTime:         occ.Start,
		EndTime:           occ.End,
		VenueID:           tpl.VenueID,
		RegionID:          tpl.RegionID,
		Status:            models.EventStatusScheduled,
		UsesDefaultPoster: true,
	}

	tickets := make([]models.TicketInventory, 0, len(tpl.TemplateTickets))
	for _, tt := range tpl.TemplateTickets {
		tickets = append(tickets, models.TicketInventory{
			ID:          uuid.New(),
			EventID:     event.ID,
			SeatType:    tt.SeatType,
			Price:       tt.DefaultPrice,
			Capacity:    tt.DefaultCapacity,
			Description: tt.DefaultDescription,
			SoldCount:   0,
		})
	}

	return event, tickets
}

// FormatTitle substitutes the {venue}, {date} and {time} tokens of a
// template's title format. Unknown tokens pass through literally.
func FormatTitle(format, venueName string, start time.Time) string {
	if venueName == "" {
		venueName = fallbackVenueName
	}
	return strings.NewReplacer(
		"{venue}", venueName,
		"{date}", start.Format("January 2, 2006"),
		"{time}", start.Format("3:04 PM"),
	).Replace(format)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Tracer plumbing; every helper tolerates a nil tracer so tests can
// construct the service with only the repositories they need.

func (s *GenerationService) startTransaction(name string) *newrelic.Transaction {
	if s.tracer == nil {
		return nil
	}
	return s.tracer.StartTransaction(name)
}

func (s *GenerationService) endTransaction(txn *newrelic.Transaction) {
	if s.tracer != nil {
		s.tracer.EndTransaction(txn)
	}
}

func (s *GenerationService) startSpan(name string, txn *newrelic.Transaction) *newrelic.Segment {
	if s.tracer == nil {
		return nil
	}
	return s.tracer.StartSpan(name, txn)
}

func (s *GenerationService) endSpan(span *newrelic.Segment) {
	if span != nil {
		span.End()
	}
}

func (s *GenerationService) recordError(txn *newrelic.Transaction, err error) {
	if s.tracer != nil {
		s.tracer.RecordError(txn, err)
	}
}

func (s *GenerationService) incrementCounter(name string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(name)
	}
}
