package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolcomms/internal/models"
	"schoolcomms/internal/repositories"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// DeliveryHandler serves the per-recipient delivery log
type DeliveryHandler struct {
	deliveries *repositories.DeliveryRepository
	logger     *logger.Logger
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(deliveries *repositories.DeliveryRepository, logger *logger.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		deliveries: deliveries,
		logger:     logger,
	}
}

// List returns the tenant's delivery records, newest first, filterable
// by channel and status.
func (h *DeliveryHandler) List(c *gin.Context) {
	tenant := tenantID(c)

	var channel *models.Channel
	if v := c.Query("channel"); v != "" {
		ch := models.Channel(v)
		if !ch.IsValid() {
			response.BadRequest(c, "Channel must be whatsapp or email")
			return
		}
		channel = &ch
	}

	var status *models.DeliveryStatus
	if v := c.Query("status"); v != "" {
		st := models.DeliveryStatus(v)
		if !st.IsValid() {
			response.BadRequest(c, "Unknown delivery status: "+v)
			return
		}
		status = &st
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.deliveries.ListByTenant(c.Request.Context(), tenant, channel, status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list deliveries for tenant %s: %v", tenant, err)
		response.InternalError(c, "Failed to list deliveries")
		return
	}

	response.Success(c, gin.H{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get returns a single delivery record.
func (h *DeliveryHandler) Get(c *gin.Context) {
	tenant := tenantID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid delivery ID")
		return
	}

	record, err := h.deliveries.GetByID(c.Request.Context(), tenant, id)
	if err != nil {
		h.logger.Error("Failed to load delivery %s for tenant %s: %v", id, tenant, err)
		response.InternalError(c, "Failed to load delivery")
		return
	}
	if record == nil {
		response.NotFound(c, "Delivery record not found")
		return
	}

	response.Success(c, record)
}
