package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newRecordingProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(requestIDProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func newTracedEngine(tp *sdktrace.TracerProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), "req-42"))
		c.Next()
	})
	r.Use(GinMiddleware(tp))
	return r
}

func attributesOf(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	tp, recorder := newRecordingProvider(t)
	r := newTracedEngine(tp)
	r.GET("/api/products/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/7", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/products/:id", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	attrs := attributesOf(spans[0])
	assert.Equal(t, "/api/products/:id", attrs["http.route"].AsString())
	assert.EqualValues(t, http.StatusOK, attrs["http.status_code"].AsInt64())
	assert.Equal(t, "req-42", attrs["request_id"].AsString())
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	tp, recorder := newRecordingProvider(t)
	r := newTracedEngine(tp)
	r.POST("/api/products", func(c *gin.Context) {
		_ = c.Error(errors.New("database unavailable"))
		c.Status(http.StatusServiceUnavailable)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/products", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestGinMiddlewareContinuesIncomingTrace(t *testing.T) {
	tp, recorder := newRecordingProvider(t)
	r := newTracedEngine(tp)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.True(t, spans[0].Parent().IsRemote())
}

func TestNewProviderWithoutEndpoint(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewProvider(lc, config.Config{AppName: "productdesk", TraceSamplingRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)

	lc.RequireStart().RequireStop()
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter(context.Background(), "collector:4317", "carrier-pigeon")
	assert.Error(t, err)
}
