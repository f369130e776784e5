package repositories

import (
	"context"
	"time"

	"example.com/fightbook/services/events/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TemplateRepository provides access to event template data
type TemplateRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB, readOnlyDB *gorm.DB) *TemplateRepository {
	return &TemplateRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ListActive returns all active templates with their tickets and display
// relations preloaded.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]models.EventTemplate, error) {
	var templates []models.EventTemplate
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Region").
		Preload("TemplateTickets", func(db *gorm.DB) *gorm.DB {
			return db.Order("template_tickets.sort_order ASC")
		}).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&templates).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active templates")
	}
	return templates, nil
}

// ListActiveByIDs returns the active templates among the given IDs.
// Inactive or unknown IDs are silently absent from the result.
func (r *TemplateRepository) ListActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]models.EventTemplate, error) {
	var templates []models.EventTemplate
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Region").
		Preload("TemplateTickets", func(db *gorm.DB) *gorm.DB {
			return db.Order("template_tickets.sort_order ASC")
		}).
		Where("is_active = ? AND id IN ?", true, ids).
		Order("name ASC").
		Find(&templates).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active templates by ids")
	}
	return templates, nil
}

// EventRepository provides access to generated event data
type EventRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventRepository {
	return &EventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ExistsForOccurrence reports whether an event already exists for the
// (template, date, venue) triple. This is the application-level half of
// the idempotency guard; the unique index on the same triple is the
// storage-level half.
func (r *EventRepository) ExistsForOccurrence(ctx context.Context, templateID uuid.UUID, date time.Time, venueID uuid.UUID) (bool, error) {
	var count int64
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Event{}).
		Where("template_id = ? AND date = ? AND venue_id = ?", templateID, date, venueID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check for existing event")
	}
	return count > 0, nil
}

// CreateWithTickets inserts an event and its ticket inventory rows as one
// transaction. A unique index violation from a racing generation run
// surfaces as an error and is handled by the caller as a skip.
func (r *EventRepository) CreateWithTickets(ctx context.Context, event *models.Event, tickets []models.TicketInventory) error {
	// Use write DB for writes
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return errors.Wrap(err, "failed to create event")
		}
		for i := range tickets {
			tickets[i].EventID = event.ID
			if err := tx.Create(&tickets[i]).Error; err != nil {
				return errors.Wrap(err, "failed to create ticket inventory")
			}
		}
		return nil
	})
}

// ListBetween returns events in [start, end] ordered by date, used by the
// admin listing endpoint.
func (r *EventRepository) ListBetween(ctx context.Context, start, end time.Time) ([]models.Event, error) {
	var events []models.Event
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Venue").
		Preload("Region").
		Preload("Tickets").
		Where("date >= ? AND date <= ?", start, end).
		Order("date ASC, start_time ASC").
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list events")
	}
	return events, nil
}
