package handlers

import (
	"github.com/gin-gonic/gin"

	"schoolcomms/internal/services"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// EmailHandler handles per-tenant SMTP configuration requests
type EmailHandler struct {
	emails *services.EmailService
	logger *logger.Logger
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(emails *services.EmailService, logger *logger.Logger) *EmailHandler {
	return &EmailHandler{
		emails: emails,
		logger: logger,
	}
}

// SaveConfig stores the tenant's SMTP settings.
func (h *EmailHandler) SaveConfig(c *gin.Context) {
	tenant := tenantID(c)

	var input services.EmailConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	setting, err := h.emails.SaveConfig(c.Request.Context(), tenant, input)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, "Email configuration saved", setting)
}

// GetConfig returns the tenant's stored SMTP settings without the
// password.
func (h *EmailHandler) GetConfig(c *gin.Context) {
	tenant := tenantID(c)

	setting, err := h.emails.GetConfig(c.Request.Context(), tenant)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if setting == nil {
		response.NotFound(c, "Email is not configured")
		return
	}

	response.Success(c, setting)
}

// TestConfigRequest optionally names an address to send a test message
// to. Without one only the SMTP connection is verified.
type TestConfigRequest struct {
	To string `json:"to"`
}

// TestConfig dials the tenant's SMTP server and reports the outcome as
// data. SMTP failures do not fail the request.
func (h *EmailHandler) TestConfig(c *gin.Context) {
	tenant := tenantID(c)

	var req TestConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.emails.TestConfig(c.Request.Context(), tenant, req.To)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	response.Success(c, result)
}
