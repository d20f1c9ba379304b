package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

// streamRecorder adds the CloseNotify that gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func streamNotes(t *testing.T, query string, notes ...domain.Notification) (string, bool) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)

	ch := make(chan domain.Notification, len(notes))
	for _, n := range notes {
		ch <- n
	}
	close(ch)

	cancelled := false
	notifier.EXPECT().Subscribe(32).Return((<-chan domain.Notification)(ch), func() { cancelled = true })

	h := NewNotificationHandler(notifier, 32)
	r := gin.New()
	r.GET("/stream", h.Stream)

	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream"+query, nil))
	return w.Body.String(), cancelled
}

func TestNotificationStream(t *testing.T) {
	body, cancelled := streamNotes(t, "",
		domain.Notification{Type: domain.NotifyRegistered, TargetID: "t-1"},
		domain.Notification{Type: domain.NotifyDelivered, TargetID: "t-1", Result: &domain.DeliveryResult{TargetID: "t-1", State: domain.DeliveryDelivered}},
	)

	assert.True(t, cancelled, "subscription released when the stream ends")
	assert.Contains(t, body, "event:registered")
	assert.Contains(t, body, "event:delivered")
	assert.Contains(t, body, `"state":"delivered"`)
	assert.Less(t, strings.Index(body, "event:registered"), strings.Index(body, "event:delivered"))
}

func TestNotificationStream_Filters(t *testing.T) {
	body, _ := streamNotes(t, "?target_id=t-2&type=failed,retry-scheduled",
		domain.Notification{Type: domain.NotifyFailed, TargetID: "t-1"},
		domain.Notification{Type: domain.NotifyDelivered, TargetID: "t-2"},
		domain.Notification{Type: domain.NotifyRetryScheduled, TargetID: "t-2", Attempt: 1},
	)

	assert.NotContains(t, body, "event:failed")
	assert.NotContains(t, body, "event:delivered")
	assert.Contains(t, body, "event:retry-scheduled")
}

func TestNewNotificationHandler_DefaultBuffer(t *testing.T) {
	h := NewNotificationHandler(nil, 0)
	assert.Equal(t, defaultStreamBuffer, h.buffer)
}
