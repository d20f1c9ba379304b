package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
)

// Outbound headers set on every delivery.
const (
	HeaderEventName       = "X-Event-Name"
	HeaderDeliveryID      = "X-Delivery-ID"
	HeaderDeliveryAttempt = "X-Delivery-Attempt"
	HeaderSignature       = "X-Signature"
)

// requestBuilder turns an event into a transport request for one target.
type requestBuilder struct {
	signer    ports.Signer
	userAgent string
}

// build applies, in order: base headers, the target's static headers, the
// auth header, the signature and the caller headers. Later entries win.
func (b *requestBuilder) build(t *domain.Target, d *delivery, deliveryID string, attempt int) (ports.TransportRequest, error) {
	payload := d.payload
	if t.Transform != nil {
		var err error
		if payload, err = t.Transform(d.event, payload); err != nil {
			return ports.TransportRequest{}, fmt.Errorf("transform payload: %w", err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.TransportRequest{}, fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{
		"Content-Type":        "application/json",
		"User-Agent":          b.userAgent,
		HeaderEventName:       d.event,
		HeaderDeliveryID:      deliveryID,
		HeaderDeliveryAttempt: strconv.Itoa(attempt),
	}
	for k, v := range t.Headers {
		setHeader(headers, k, v)
	}
	if t.Auth != nil {
		name, value := t.Auth.Header()
		setHeader(headers, name, value)
	}
	if t.Signing {
		sig, err := b.signer.Sign(t.ID, body, t.SigningVersion)
		if err != nil {
			return ports.TransportRequest{}, fmt.Errorf("sign payload: %w", err)
		}
		setHeader(headers, HeaderSignature, sig)
	}
	for k, v := range d.caller.Headers() {
		setHeader(headers, k, v)
	}

	req := ports.TransportRequest{
		Method:  t.Method,
		URL:     t.URL,
		Headers: headers,
	}
	if t.Method == http.MethodGet {
		for k := range req.Headers {
			if strings.EqualFold(k, "Content-Type") {
				delete(req.Headers, k)
			}
		}
		if req.URL, err = withQuery(t.URL, body); err != nil {
			return ports.TransportRequest{}, err
		}
		return req, nil
	}
	req.Body = body
	return req, nil
}

// setHeader stores name=value, replacing any entry whose name differs only
// in case. Header names are case-insensitive on the wire.
func setHeader(h map[string]string, name, value string) {
	for k := range h {
		if k != name && strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
	h[name] = value
}

// withQuery encodes a JSON object's top-level fields as query parameters.
// Strings are sent as-is, other values as their JSON text. Non-object payloads
// are sent whole under "payload".
func withQuery(raw string, body []byte) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	q := u.Query()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		if string(body) != "null" {
			q.Set("payload", string(body))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	for k, v := range fields {
		var s string
		if json.Unmarshal(v, &s) == nil {
			q.Set(k, s)
			continue
		}
		q.Set(k, string(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
