package handlers

import (
	"github.com/gin-gonic/gin"

	"schoolcomms/internal/services"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// ConnectionHandler handles WhatsApp session lifecycle requests
type ConnectionHandler struct {
	connections *services.ConnectionService
	logger      *logger.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connections *services.ConnectionService, logger *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		logger:      logger,
	}
}

// Connect starts or joins the tenant's WhatsApp handshake. The response
// carries either a pairing QR image or the already-connected phone
// number.
func (h *ConnectionHandler) Connect(c *gin.Context) {
	tenant := tenantID(c)

	status, err := h.connections.Connect(c.Request.Context(), tenant)
	if err != nil {
		h.logger.Warn("Connect failed for tenant %s: %v", tenant, err)
		respondServiceError(c, h.logger, err)
		return
	}

	if status.Connected {
		response.SuccessWithMessage(c, "WhatsApp is connected", status)
		return
	}
	response.SuccessWithMessage(c, "Scan the QR code to link WhatsApp", status)
}

// Status reports the tenant's current WhatsApp session status.
func (h *ConnectionHandler) Status(c *gin.Context) {
	tenant := tenantID(c)

	status, err := h.connections.Status(c.Request.Context(), tenant)
	if err != nil {
		h.logger.Error("Status lookup failed for tenant %s: %v", tenant, err)
		respondServiceError(c, h.logger, err)
		return
	}

	response.Success(c, status)
}

// Disconnect tears down the tenant's WhatsApp session and purges the
// stored credentials. Idempotent.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	tenant := tenantID(c)

	if err := h.connections.Disconnect(c.Request.Context(), tenant); err != nil {
		h.logger.Error("Disconnect failed for tenant %s: %v", tenant, err)
		respondServiceError(c, h.logger, err)
		return
	}

	response.SuccessWithMessage(c, "WhatsApp disconnected", nil)
}
