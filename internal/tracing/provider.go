package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("tracing",
	fx.Provide(NewProvider),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

// NewProvider installs the global tracer provider. Spans are always created
// so request ids and gorm spans correlate; they are exported only when an
// OTLP endpoint is configured.
func NewProvider(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", cfg.AppVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSamplingRatio))),
		sdktrace.WithSpanProcessor(requestIDProcessor{}),
	}

	if cfg.OTLPEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		exporter, err := newExporter(ctx, cfg.OTLPEndpoint, cfg.OTLPProtocol)
		cancel()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		log.Info("trace export enabled",
			zap.String("endpoint", cfg.OTLPEndpoint),
			zap.String("protocol", cfg.OTLPProtocol),
		)
	} else {
		log.Debug("trace export disabled, OTEL_EXPORTER_OTLP_ENDPOINT not set")
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

func newExporter(ctx context.Context, endpoint, protocol string) (sdktrace.SpanExporter, error) {
	switch protocol {
	case "http", "http/protobuf":
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp http exporter: %w", err)
		}
		return exporter, nil
	case "", "grpc":
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp grpc exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// requestIDProcessor stamps the request id from the logging context on every
// span so traces and log lines can be joined.
type requestIDProcessor struct{}

func (requestIDProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		s.SetAttributes(attribute.String("request_id", id))
	}
}

func (requestIDProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (requestIDProcessor) Shutdown(context.Context) error { return nil }

func (requestIDProcessor) ForceFlush(context.Context) error { return nil }
