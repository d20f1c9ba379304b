package handler

import (
	"strings"
	"time"

	"event-dispatcher/internal/adapter/http/dto"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"
	"event-dispatcher/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	// pendingJob marks a claimed idempotency key whose job id is not known yet.
	pendingJob = "pending"
)

// EventHandler ingests events.
type EventHandler struct {
	dispatcher ports.Dispatcher
	idem       ports.IdempotencyCache // nil = Idempotency-Key ignored
	idemTTL    time.Duration
	log        zerolog.Logger
}

func NewEventHandler(dispatcher ports.Dispatcher, idem ports.IdempotencyCache, idemTTL time.Duration, log zerolog.Logger) *EventHandler {
	return &EventHandler{dispatcher: dispatcher, idem: idem, idemTTL: idemTTL, log: log}
}

// Trigger handles POST /api/v1/events. It waits for the first attempt on
// every matching target; delivery failures are part of the 200 response.
func (h *EventHandler) Trigger(c *gin.Context) {
	var req dto.TriggerEventRequest
	if !bindJSON(c, &req) {
		return
	}

	results := h.dispatcher.Trigger(c.Request.Context(), req.Event, req.Payload, req.CallerContext(requestID(c)))
	response.OK(c, dto.NewTriggerResponse(req.Event, results))
}

// TriggerAsync handles POST /api/v1/events/async. With an Idempotency-Key
// header, a repeated key within the TTL returns the original job id without
// dispatching again.
func (h *EventHandler) TriggerAsync(c *gin.Context) {
	var req dto.TriggerEventRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > 200 {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 200 characters"))
		return
	}
	claimed := false
	if key != "" && h.idem != nil {
		ok, err := h.idem.SetNX(ctx, key, []byte(pendingJob), h.idemTTL)
		switch {
		case err != nil:
			h.log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency check failed, dispatching anyway")
		case !ok:
			h.duplicate(c, key, req.Event)
			return
		default:
			claimed = true
		}
	}

	jobID, err := h.dispatcher.TriggerAsync(ctx, req.Event, req.Payload, req.CallerContext(requestID(c)))
	if err != nil {
		if claimed {
			if derr := h.idem.Delete(ctx, key); derr != nil {
				h.log.Warn().Err(derr).Str("idempotency_key", key).Msg("failed to release idempotency key")
			}
		}
		response.Error(c, err)
		return
	}

	if claimed {
		if err := h.idem.Set(ctx, key, []byte(jobID), h.idemTTL); err != nil {
			h.log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent job id")
		}
	}
	response.Accepted(c, dto.AsyncTriggerResponse{Event: req.Event, JobID: jobID})
}

func (h *EventHandler) duplicate(c *gin.Context, key, event string) {
	resp := dto.AsyncTriggerResponse{Event: event, Duplicate: true}
	val, err := h.idem.Get(c.Request.Context(), key)
	if err != nil {
		h.log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to read idempotent job id")
	} else if s := string(val); s != pendingJob {
		resp.JobID = s
	}
	response.Accepted(c, resp)
}

func requestID(c *gin.Context) string {
	return c.GetString(response.RequestIDKey)
}
