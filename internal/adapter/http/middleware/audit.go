package middleware

import (
	"encoding/json"
	"net/http"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// CtxResourceID lets a handler name the resource it acted on when the id is
// not in the path (a new target, the client a token was issued to).
const CtxResourceID = "audit_resource_id"

// AuditLog creates an audit middleware that logs successful write operations.
// Routes are matched on their registered template, not the raw path.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		resourceID := c.Param("id")
		if id := c.GetString(CtxResourceID); id != "" {
			resourceID = id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			Actor:        Operator(c),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/auth/token" && method == http.MethodPost:
		return domain.AuditActionIssueToken, "session"
	case route == "/api/v1/targets" && method == http.MethodPost:
		return domain.AuditActionRegisterTarget, "target"
	case route == "/api/v1/targets/:id" && method == http.MethodPatch:
		return domain.AuditActionUpdateTarget, "target"
	case route == "/api/v1/targets/:id" && method == http.MethodDelete:
		return domain.AuditActionDeleteTarget, "target"
	case route == "/api/v1/targets/:id/rotate-secret" && method == http.MethodPost:
		return domain.AuditActionRotateSecret, "target"
	}
	return "", ""
}
