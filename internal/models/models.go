package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Recurrence types a template may carry.
const (
	RecurrenceNone    = "none"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// EventStatusScheduled is the status every generated event starts in.
const EventStatusScheduled = "SCHEDULED"

// Region represents a geographic region events are grouped under
type Region struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
}

// Venue represents a stadium or gym where events are held
type Venue struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Address   string         `json:"address"`
	RegionID  uuid.UUID      `gorm:"type:uuid;not null" json:"region_id"`
	Region    Region         `gorm:"foreignKey:RegionID" json:"-"`
}

// EventTemplate describes a recurring pattern of events and the defaults
// applied to every event materialized from it.
//
// RecurringDaysOfWeek and DaysOfMonth are stored as JSON arrays because the
// admin schema evolved over time and older rows carry numbers-as-strings.
// They are normalized into a strict rule at generation time.
type EventTemplate struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt   `gorm:"index" json:"-"`
	Name                string           `gorm:"not null" json:"name"`
	RecurrenceType      string           `gorm:"not null;default:none" json:"recurrence_type"`
	RecurringDaysOfWeek []byte           `gorm:"type:jsonb" json:"recurring_days_of_week"`
	DaysOfMonth         []byte           `gorm:"type:jsonb" json:"days_of_month"`
	DefaultStartTime    string           `gorm:"not null" json:"default_start_time"`
	DefaultEndTime      *string          `json:"default_end_time"`
	DefaultTitleFormat  string           `gorm:"not null" json:"default_title_format"`
	DefaultDescription  *string          `json:"default_description"`
	VenueID             uuid.UUID        `gorm:"type:uuid;not null" json:"venue_id"`
	RegionID            uuid.UUID        `gorm:"type:uuid;not null" json:"region_id"`
	StartDate           *time.Time       `gorm:"type:date" json:"start_date"`
	EndDate             *time.Time       `gorm:"type:date" json:"end_date"`
	IsActive            bool             `gorm:"not null;default:true" json:"is_active"`
	Venue               Venue            `gorm:"foreignKey:VenueID" json:"-"`
	Region              Region           `gorm:"foreignKey:RegionID" json:"-"`
	TemplateTickets     []TemplateTicket `gorm:"foreignKey:TemplateID" json:"template_tickets"`
}

// TemplateTicket defines one ticket type a template stamps onto every
// event it generates.
type TemplateTicket struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	TemplateID         uuid.UUID      `gorm:"type:uuid;not null" json:"template_id"`
	SeatType           string         `gorm:"not null" json:"seat_type"`
	DefaultPrice       float64        `gorm:"not null" json:"default_price"`
	DefaultCapacity    int            `gorm:"not null" json:"default_capacity"`
	DefaultDescription *string        `json:"default_description"`
	SortOrder          int            `gorm:"not null;default:0" json:"sort_order"`
}

// Event is one concrete occurrence materialized from a template.
//
// The composite unique index on (template_id, date, venue_id) is the
// source of truth for idempotent generation: the application-level
// existence check is only an optimization, the index holds under
// concurrent invocations.
type Event struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt    `gorm:"index" json:"-"`
	TemplateID        *uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_events_template_date_venue" json:"template_id"`
	Title             string            `gorm:"not null" json:"title"`
	Description       string            `json:"description"`
	Date              time.Time         `gorm:"type:date;not null;uniqueIndex:idx_events_template_date_venue" json:"date"`
	StartTime         time.Time         `gorm:"not null" json:"start_time"`
	EndTime           *time.Time        `json:"end_time"`
	VenueID           uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_events_template_date_venue" json:"venue_id"`
	RegionID          uuid.UUID         `gorm:"type:uuid;not null" json:"region_id"`
	Status            string            `gorm:"not null;default:SCHEDULED" json:"status"`
	UsesDefaultPoster bool              `gorm:"not null;default:true" json:"uses_default_poster"`
	Venue             Venue             `gorm:"foreignKey:VenueID" json:"-"`
	Region            Region            `gorm:"foreignKey:RegionID" json:"-"`
	Tickets           []TicketInventory `gorm:"foreignKey:EventID" json:"tickets"`
}

// TicketInventory is one sellable ticket type of a generated event.
// Rows are created together with their event and owned by it; booking
// flows downstream mutate SoldCount, this service never does.
type TicketInventory struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	EventID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"event_id"`
	SeatType    string         `gorm:"not null" json:"seat_type"`
	Price       float64        `gorm:"not null" json:"price"`
	Capacity    int            `gorm:"not null" json:"capacity"`
	Description *string        `json:"description"`
	SoldCount   int            `gorm:"not null;default:0" json:"sold_count"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Region{},
		&Venue{},
		&EventTemplate{},
		&TemplateTicket{},
		&Event{},
		&TicketInventory{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
