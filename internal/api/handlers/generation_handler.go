package handlers

import (
	"net/http"
	"time"

	"example.com/fightbook/services/events/internal/services"
	"example.com/fightbook/services/events/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// GenerationHandler handles event generation HTTP requests
type GenerationHandler struct {
	generationService *services.GenerationService
	tracer            tracing.Tracer
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(generationService *services.GenerationService, tracer tracing.Tracer) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		tracer:            tracer,
	}
}

// GenerateRequest represents an incoming generation request. Dates are
// calendar days, both ends inclusive.
type GenerateRequest struct {
	StartDate   string   `json:"start_date" binding:"required"`
	EndDate     string   `json:"end_date" binding:"required"`
	TemplateIDs []string `json:"template_ids"`
	PreviewOnly bool     `json:"preview_only"`
}

// HandleGenerate runs a generation batch (or a preview) over the
// requested window.
func (h *GenerationHandler) HandleGenerate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-generate-events")
	defer h.tracer.EndTransaction(txn)

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	startDate, err := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	endDate, err := time.ParseInLocation(dateLayout, req.EndDate, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}
	if endDate.Before(startDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must not be before start_date"})
		return
	}

	templateIDs := make([]uuid.UUID, 0, len(req.TemplateIDs))
	for _, raw := range req.TemplateIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "template_ids must be valid UUIDs"})
			return
		}
		templateIDs = append(templateIDs, id)
	}

	h.tracer.AddAttribute(txn, "start_date", req.StartDate)
	h.tracer.AddAttribute(txn, "end_date", req.EndDate)
	h.tracer.AddAttribute(txn, "preview_only", req.PreviewOnly)

	result, err := h.generationService.Generate(c, services.GenerateRequest{
		StartDate:   startDate,
		EndDate:     endDate,
		TemplateIDs: templateIDs,
		PreviewOnly: req.PreviewOnly,
	})
	if err != nil {
		log.Error().Err(err).Msg("Generation batch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleListEvents returns events in the requested window for the admin
// calendar view.
func (h *GenerationHandler) HandleListEvents(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-events")
	defer h.tracer.EndTransaction(txn)

	from, err := time.ParseInLocation(dateLayout, c.Query("from"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := time.ParseInLocation(dateLayout, c.Query("to"), time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}

	events, err := h.generationService.ListEvents(c, from, to)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// RegisterRoutes registers the handler's routes
func (h *GenerationHandler) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/admin")
	admin.POST("/events/generate", h.HandleGenerate)
	admin.GET("/events", h.HandleListEvents)
}
