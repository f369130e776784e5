package services

import (
	"context"
	"testing"
	"time"

	"example.com/fightbook/services/events/internal/clock"
	"example.com/fightbook/services/events/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock repositories for testing

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) ListActive(ctx context.Context) ([]models.EventTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EventTemplate), args.Error(1)
}

func (m *MockTemplateRepository) ListActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.EventTemplate, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EventTemplate), args.Error(1)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) ExistsForOccurrence(ctx context.Context, templateID uuid.UUID, date time.Time, venueID uuid.UUID) (bool, error) {
	args := m.Called(ctx, templateID, date, venueID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepository) CreateWithTickets(ctx context.Context, event *models.Event, tickets []models.TicketInventory) error {
	args := m.Called(ctx, event, tickets)
	return args.Error(0)
}

func (m *MockEventRepository) ListBetween(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func strptr(s string) *string { return &s }

// fridayNightTemplate is a weekly Friday template with three ticket types.
func fridayNightTemplate() models.EventTemplate {
	return models.EventTemplate{
		ID:                  uuid.New(),
		Name:                "Friday Fight Night",
		RecurrenceType:      models.RecurrenceWeekly,
		RecurringDaysOfWeek: []byte(`[5]`),
		DefaultStartTime:    "19:00",
		DefaultEndTime:      strptr("23:00"),
		DefaultTitleFormat:  "{venue} Fight Night - {date}",
		DefaultDescription:  strptr("Eight fights on the card"),
		VenueID:             uuid.New(),
		RegionID:            uuid.New(),
		IsActive:            true,
		Venue:               models.Venue{Name: "Lumpinee"},
		Region:              models.Region{Name: "Bangkok"},
		TemplateTickets: []models.TemplateTicket{
			{SeatType: "RINGSIDE", DefaultPrice: 2000, DefaultCapacity: 50, DefaultDescription: strptr("Closest to the action")},
			{SeatType: "SECOND_TIER", DefaultPrice: 1500, DefaultCapacity: 150},
			{SeatType: "STANDING", DefaultPrice: 800, DefaultCapacity: 300},
		},
	}
}

func newTestService(tplRepo *MockTemplateRepository, evtRepo *MockEventRepository, clk clock.Clock) *GenerationService {
	return NewGenerationService(tplRepo, evtRepo, nil, nil, nil, nil, nil, clk)
}

func TestGenerateCreatesEventsWithTickets(t *testing.T) {
	tpl := fridayNightTemplate()
	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, mock.AnythingOfType("time.Time"), tpl.VenueID).Return(false, nil)
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(nil)

	service := newTestService(tplRepo, evtRepo, nil)

	// Fridays in the window: April 4 and April 11.
	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate: date(2025, time.April, 1),
		EndDate:   date(2025, time.April, 14),
	})

	require.NoError(t, err)
	require.Equal(t, 1, result.TemplatesProcessed)
	require.Equal(t, 2, result.GeneratedCount)
	require.Len(t, result.Events, 2)

	first := result.Events[0]
	require.Equal(t, "Lumpinee Fight Night - April 4, 2025", first.Event.Title)
	require.Equal(t, date(2025, time.April, 4), first.Event.Date)
	require.Equal(t, 19, first.Event.StartTime.Hour())
	require.NotNil(t, first.Event.EndTime)
	require.Equal(t, 23, first.Event.EndTime.Hour())
	require.Equal(t, models.EventStatusScheduled, first.Event.Status)
	require.True(t, first.Event.UsesDefaultPoster)
	require.Equal(t, "Lumpinee", first.VenueName)
	require.Equal(t, "Bangkok", first.RegionName)
	require.Equal(t, "Friday Fight Night", first.TemplateName)

	// Ticket fan-out: one inventory row per template ticket type.
	require.Len(t, first.Tickets, 3)
	require.Equal(t, "RINGSIDE", first.Tickets[0].SeatType)
	require.Equal(t, 2000.0, first.Tickets[0].Price)
	require.Equal(t, 50, first.Tickets[0].Capacity)
	require.Equal(t, "Closest to the action", *first.Tickets[0].Description)
	for _, ticket := range first.Tickets {
		require.Equal(t, 0, ticket.SoldCount)
		require.Equal(t, first.Event.ID, ticket.EventID)
	}

	evtRepo.AssertExpectations(t)
	tplRepo.AssertExpectations(t)
}

func TestGenerateIsIdempotent(t *testing.T) {
	tpl := fridayNightTemplate()
	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)
	// April 4 was materialized by a previous run; April 11 was not.
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, date(2025, time.April, 4), tpl.VenueID).Return(true, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, date(2025, time.April, 11), tpl.VenueID).Return(false, nil)
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(nil).Once()

	service := newTestService(tplRepo, evtRepo, nil)

	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate: date(2025, time.April, 1),
		EndDate:   date(2025, time.April, 14),
	})

	require.NoError(t, err)
	require.Equal(t, 1, result.GeneratedCount)
	require.Len(t, result.Events, 1)
	require.Equal(t, date(2025, time.April, 11), result.Events[0].Event.Date)

	evtRepo.AssertExpectations(t)
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	tpl := fridayNightTemplate()
	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, mock.AnythingOfType("time.Time"), tpl.VenueID).Return(false, nil)

	service := newTestService(tplRepo, evtRepo, nil)

	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate:   date(2025, time.April, 1),
		EndDate:     date(2025, time.April, 14),
		PreviewOnly: true,
	})

	require.NoError(t, err)
	require.True(t, result.PreviewOnly)
	require.Equal(t, 0, result.GeneratedCount)
	require.Len(t, result.Events, 2)
	require.Len(t, result.Events[0].Tickets, 3)

	evtRepo.AssertNotCalled(t, "CreateWithTickets", mock.Anything, mock.Anything, mock.Anything)
}

func TestPartialFailureDoesNotAbortBatch(t *testing.T) {
	tpl := fridayNightTemplate()
	// Every weekday in one working week: five candidates.
	tpl.RecurringDaysOfWeek = []byte(`[1, 2, 3, 4, 5]`)

	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, mock.AnythingOfType("time.Time"), tpl.VenueID).Return(false, nil)
	// The third insert fails; the other four must still go through.
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(nil).Twice()
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(errors.New("connection reset")).Once()
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(nil).Twice()

	service := newTestService(tplRepo, evtRepo, nil)

	// 2025-04-07 is a Monday, 2025-04-11 a Friday.
	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate: date(2025, time.April, 7),
		EndDate:   date(2025, time.April, 11),
	})

	require.NoError(t, err)
	require.Equal(t, 4, result.GeneratedCount)
	require.Len(t, result.Events, 4)

	evtRepo.AssertExpectations(t)
}

func TestTemplateFilterUsesRequestedIDs(t *testing.T) {
	tpl := fridayNightTemplate()
	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	ids := []uuid.UUID{tpl.ID}
	tplRepo.On("ListActiveByIDs", mock.Anything, ids).Return([]models.EventTemplate{tpl}, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, mock.AnythingOfType("time.Time"), tpl.VenueID).Return(true, nil)

	service := newTestService(tplRepo, evtRepo, nil)

	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate:   date(2025, time.April, 1),
		EndDate:     date(2025, time.April, 14),
		TemplateIDs: ids,
	})

	require.NoError(t, err)
	require.Equal(t, 1, result.TemplatesProcessed)
	require.Equal(t, 0, result.GeneratedCount)

	tplRepo.AssertExpectations(t)
	tplRepo.AssertNotCalled(t, "ListActive", mock.Anything)
}

func TestGenerateFailsWhenTemplateStoreUnreachable(t *testing.T) {
	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	service := newTestService(tplRepo, evtRepo, nil)

	_, err := service.Generate(context.Background(), GenerateRequest{
		StartDate: date(2025, time.April, 1),
		EndDate:   date(2025, time.April, 14),
	})

	require.Error(t, err)
}

func TestMalformedStartTimeSkipsTemplate(t *testing.T) {
	tpl := fridayNightTemplate()
	tpl.DefaultStartTime = "25:99"

	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)

	service := newTestService(tplRepo, evtRepo, nil)

	result, err := service.Generate(context.Background(), GenerateRequest{
		StartDate: date(2025, time.April, 1),
		EndDate:   date(2025, time.April, 14),
	})

	require.NoError(t, err)
	require.Equal(t, 1, result.TemplatesProcessed)
	require.Empty(t, result.Events)

	evtRepo.AssertNotCalled(t, "ExistsForOccurrence", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateUpcomingEventsDerivesWindowFromClock(t *testing.T) {
	tpl := fridayNightTemplate()
	tpl.RecurringDaysOfWeek = []byte(`[2]`) // Tuesday

	tplRepo := new(MockTemplateRepository)
	evtRepo := new(MockEventRepository)

	tplRepo.On("ListActive", mock.Anything).Return([]models.EventTemplate{tpl}, nil)
	evtRepo.On("ExistsForOccurrence", mock.Anything, tpl.ID, mock.AnythingOfType("time.Time"), tpl.VenueID).Return(false, nil)
	evtRepo.On("CreateWithTickets", mock.Anything, mock.AnythingOfType("*models.Event"), mock.AnythingOfType("[]models.TicketInventory")).Return(nil)

	// 2025-04-01 is a Tuesday; the 7-day window also contains 2025-04-08.
	fixed := clock.NewFixed(time.Date(2025, time.April, 1, 10, 30, 0, 0, time.UTC))
	service := newTestService(tplRepo, evtRepo, fixed)

	result, err := service.GenerateUpcomingEvents(context.Background(), 7)

	require.NoError(t, err)
	require.False(t, result.PreviewOnly)
	require.Equal(t, 2, result.GeneratedCount)
	require.Equal(t, date(2025, time.April, 1), result.Events[0].Event.Date)
	require.Equal(t, date(2025, time.April, 8), result.Events[1].Event.Date)
}

func TestFormatTitle(t *testing.T) {
	start := time.Date(2025, time.April, 7, 19, 0, 0, 0, time.UTC)

	require.Equal(t,
		"Lumpinee Fight Night - April 7, 2025",
		FormatTitle("{venue} Fight Night - {date}", "Lumpinee", start))

	require.Equal(t,
		"Doors 7:00 PM at Lumpinee",
		FormatTitle("Doors {time} at {venue}", "Lumpinee", start))

	// Unknown tokens pass through literally; an empty venue falls back.
	require.Equal(t,
		"Venue {foo} April 7, 2025",
		FormatTitle("{venue} {foo} {date}", "", start))
}
