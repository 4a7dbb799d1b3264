package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolcomms/internal/models"
	"schoolcomms/internal/services"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// DispatchHandler handles bulk message dispatch requests
type DispatchHandler struct {
	dispatcher *services.DispatchService
	logger     *logger.Logger
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatcher *services.DispatchService, logger *logger.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SendBulkRequest is the bulk dispatch request body. Either body or
// template_id must be present; template content wins when both are.
type SendBulkRequest struct {
	Channel    string                       `json:"channel" binding:"required"`
	Recipients []services.DispatchRecipient `json:"recipients" binding:"required"`
	Body       string                       `json:"body"`
	Subject    string                       `json:"subject"`
	TemplateID *string                      `json:"template_id"`
}

// SendBulk runs one bulk send synchronously and returns per-recipient
// accounting.
func (h *DispatchHandler) SendBulk(c *gin.Context) {
	tenant := tenantID(c)

	var req SendBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	channel := models.Channel(req.Channel)
	if !channel.IsValid() {
		response.BadRequest(c, "Channel must be whatsapp or email")
		return
	}

	dispatchReq := services.DispatchRequest{
		Channel:    channel,
		Recipients: req.Recipients,
		Body:       req.Body,
		Subject:    req.Subject,
	}
	if req.TemplateID != nil {
		id, err := uuid.Parse(*req.TemplateID)
		if err != nil {
			response.BadRequest(c, "Invalid template ID")
			return
		}
		dispatchReq.TemplateID = &id
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), tenant, dispatchReq)
	if err != nil {
		h.logger.Warn("Bulk dispatch rejected for tenant %s: %v", tenant, err)
		respondServiceError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}
