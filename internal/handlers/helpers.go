package handlers

import (
	"github.com/gin-gonic/gin"

	"schoolcomms/internal/services"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// respondServiceError maps the service error taxonomy onto HTTP status
// codes. Anything without a kind is an internal failure and gets logged
// rather than leaked.
func respondServiceError(c *gin.Context, log *logger.Logger, err error) {
	switch services.KindOf(err) {
	case services.KindRecipient:
		response.BadRequest(c, err.Error())
	case services.KindConfiguration:
		response.UnprocessableEntity(c, err.Error())
	case services.KindAuthFailure:
		response.Conflict(c, err.Error())
	case services.KindHandshakeTimeout, services.KindTransport:
		response.ServiceUnavailable(c, err.Error())
	default:
		log.Error("Unhandled service error: %v", err)
		response.InternalError(c, "Internal server error")
	}
}

// tenantID extracts the authenticated tenant set by the auth middleware.
func tenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}
