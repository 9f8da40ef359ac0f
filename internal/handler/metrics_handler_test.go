package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/internal/service"
)

type pingStub struct{ err error }

func (p pingStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(nil, pingStub{})
	c, rec := newHandlerContext(http.MethodGet, "/ready", nil, "")
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	handler = NewMetricsHandler(nil, pingStub{err: errors.New("connection refused")})
	c, rec = newHandlerContext(http.MethodGet, "/ready", nil, "")
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	handler := NewMetricsHandler(nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/metrics", nil, "")
	handler.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	metrics := service.NewMetricsService()
	metrics.RecordActivation()
	handler = NewMetricsHandler(metrics, nil)
	c, rec = newHandlerContext(http.MethodGet, "/metrics", nil, "")
	handler.Prometheus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timetable_activations_total 1")
}
