package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolcomms/internal/repositories"
	"schoolcomms/internal/templates"
	"schoolcomms/pkg/logger"
	"schoolcomms/pkg/response"
)

// TemplateHandler serves message templates and the supported tag list
type TemplateHandler struct {
	templates *repositories.TemplateRepository
	logger    *logger.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(templates *repositories.TemplateRepository, logger *logger.Logger) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		logger:    logger,
	}
}

// List returns the tenant's templates plus the tags Render substitutes.
func (h *TemplateHandler) List(c *gin.Context) {
	tenant := tenantID(c)

	tmpls, err := h.templates.ListByTenant(c.Request.Context(), tenant)
	if err != nil {
		h.logger.Error("Failed to list templates for tenant %s: %v", tenant, err)
		response.InternalError(c, "Failed to list templates")
		return
	}

	response.Success(c, gin.H{
		"templates": tmpls,
		"tags":      templates.Tags,
	})
}

// Get returns a single template.
func (h *TemplateHandler) Get(c *gin.Context) {
	tenant := tenantID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid template ID")
		return
	}

	tmpl, err := h.templates.GetByID(c.Request.Context(), tenant, id)
	if err != nil {
		h.logger.Error("Failed to load template %s for tenant %s: %v", id, tenant, err)
		response.InternalError(c, "Failed to load template")
		return
	}
	if tmpl == nil {
		response.NotFound(c, "Template not found")
		return
	}

	response.Success(c, tmpl)
}
