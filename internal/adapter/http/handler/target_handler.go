package handler

import (
	"strconv"

	"event-dispatcher/internal/adapter/http/dto"
	"event-dispatcher/internal/adapter/http/middleware"
	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"
	"event-dispatcher/pkg/response"

	"github.com/gin-gonic/gin"
)

// TargetHandler serves the target administration API.
type TargetHandler struct {
	registry   ports.Registry
	stats      ports.StatsTracker
	deliveries ports.DeliveryLogService
}

func NewTargetHandler(registry ports.Registry, stats ports.StatsTracker, deliveries ports.DeliveryLogService) *TargetHandler {
	return &TargetHandler{registry: registry, stats: stats, deliveries: deliveries}
}

// Create handles POST /api/v1/targets.
func (h *TargetHandler) Create(c *gin.Context) {
	var req dto.CreateTargetRequest
	if !bindJSON(c, &req) {
		return
	}

	target, err := req.ToDomain()
	if err != nil {
		response.Error(c, err)
		return
	}

	reg, err := h.registry.Register(c.Request.Context(), target)
	if err != nil {
		response.Error(c, err)
		return
	}

	registered, err := h.registry.Get(reg.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, reg.ID)
	response.Created(c, dto.RegisterTargetResponse{
		TargetResponse: dto.NewTargetResponse(registered),
		Secret:         reg.Secret,
	})
}

// List handles GET /api/v1/targets?event=&status=.
func (h *TargetHandler) List(c *gin.Context) {
	filter := domain.TargetFilter{
		Event:  c.Query("event"),
		Status: domain.TargetStatus(c.Query("status")),
	}
	switch filter.Status {
	case "", domain.TargetStatusActive, domain.TargetStatusSuspended:
	default:
		response.Error(c, apperror.Validation("status must be active or suspended"))
		return
	}

	targets := h.registry.List(filter)
	resp := dto.TargetListResponse{
		Targets: make([]dto.TargetResponse, 0, len(targets)),
		Total:   len(targets),
	}
	for _, t := range targets {
		resp.Targets = append(resp.Targets, dto.NewTargetResponse(t))
	}
	response.OK(c, resp)
}

// Get handles GET /api/v1/targets/:id.
func (h *TargetHandler) Get(c *gin.Context) {
	t, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTargetResponse(t))
}

// Update handles PATCH /api/v1/targets/:id. Switching signing on returns the
// new secret, since this is the only time it can be read.
func (h *TargetHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req dto.UpdateTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	patch, err := req.ToPatch()
	if err != nil {
		response.Error(c, err)
		return
	}

	before, err := h.registry.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	updated, err := h.registry.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.RegisterTargetResponse{TargetResponse: dto.NewTargetResponse(updated)}
	if updated.Signing && !before.Signing {
		secret, err := h.registry.RotateSecret(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}
		resp.Secret = secret
	}
	response.OK(c, resp)
}

// Delete handles DELETE /api/v1/targets/:id. Unknown ids succeed.
func (h *TargetHandler) Delete(c *gin.Context) {
	if err := h.registry.Unregister(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RotateSecret handles POST /api/v1/targets/:id/rotate-secret.
func (h *TargetHandler) RotateSecret(c *gin.Context) {
	id := c.Param("id")
	secret, err := h.registry.RotateSecret(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RotateSecretResponse{TargetID: id, Secret: secret})
}

// Stats handles GET /api/v1/targets/:id/stats.
func (h *TargetHandler) Stats(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewStatsResponse(h.stats.Get(id)))
}

// Deliveries handles GET /api/v1/targets/:id/deliveries?limit=.
func (h *TargetHandler) Deliveries(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.registry.Get(id); err != nil {
		response.Error(c, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.deliveries.ListByTarget(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.DeliveryLogListResponse{Deliveries: logs})
}
