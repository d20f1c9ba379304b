package handler

import (
	"io"
	"strings"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const (
	defaultKeepAlive    = 15 * time.Second
	defaultStreamBuffer = 64
)

// NotificationHandler streams notifications as server-sent events.
type NotificationHandler struct {
	notifier  ports.Notifier
	buffer    int
	keepAlive time.Duration
}

func NewNotificationHandler(notifier ports.Notifier, buffer int) *NotificationHandler {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &NotificationHandler{notifier: notifier, buffer: buffer, keepAlive: defaultKeepAlive}
}

// Stream handles GET /api/v1/notifications/stream?target_id=&type=a,b.
// Each notification is one SSE event named after its type. A slow client
// misses notifications rather than holding up delivery.
func (h *NotificationHandler) Stream(c *gin.Context) {
	targetID := c.Query("target_id")
	types := map[domain.NotificationType]bool{}
	for _, t := range strings.Split(c.Query("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[domain.NotificationType(t)] = true
		}
	}

	notes, cancel := h.notifier.Subscribe(h.buffer)
	defer cancel()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			c.SSEvent("keepalive", time.Now().UTC().Format(time.RFC3339))
			return true
		case n, ok := <-notes:
			if !ok {
				return false
			}
			if targetID != "" && n.TargetID != targetID {
				return true
			}
			if len(types) > 0 && !types[n.Type] {
				return true
			}
			c.SSEvent(string(n.Type), n)
			return true
		}
	})
}
