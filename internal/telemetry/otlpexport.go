package telemetry

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/tracereader/internal/span"
)

// OTLPConfig configures the optional OTLP span exporter.
type OTLPConfig struct {
	Endpoint    string // OTLP/gRPC collector endpoint, e.g. "localhost:4317"
	Insecure    bool   // skip TLS, for local collectors
	ServiceName string // defaults to "tracereader"
}

// OTLPExporter mirrors reconstructed spans to an OTLP collector. It
// implements reader.Exporter. All reconstructed spans are reported under
// one synthetic trace, since the reconstructed tree (unlike a distributed
// trace) has no natural per-request trace boundary.
type OTLPExporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	traceID  trace.TraceID
}

// NewOTLPExporter dials cfg.Endpoint and returns an exporter ready to
// receive spans.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*OTLPExporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry: OTLP endpoint is required")
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tracereader"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otel resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	var traceID trace.TraceID
	seed := uuid.New()
	copy(traceID[:], seed[:])

	return &OTLPExporter{
		provider: tp,
		tracer:   tp.Tracer("tracereader"),
		traceID:  traceID,
	}, nil
}

// ExportSpans converts newly-invalidated spans to OTel spans and exports
// them. Best-effort: the reader treats export as fire-and-forget.
func (e *OTLPExporter) ExportSpans(ctx context.Context, spans []span.Span) {
	if e == nil {
		return
	}
	for _, s := range spans {
		e.exportOne(ctx, s)
	}
}

func (e *OTLPExporter) exportOne(ctx context.Context, s span.Span) {
	parentCtx := ctx
	if s.Parent != nil {
		parentSpanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    e.traceID,
			SpanID:     spanIDFor(*s.Parent),
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
		parentCtx = trace.ContextWithRemoteSpanContext(parentCtx, parentSpanCtx)
	}

	attrs := make([]attribute.KeyValue, 0, len(s.Values)+2)
	attrs = append(attrs,
		attribute.String("tracereader.target", s.Target),
		attribute.Int64("tracereader.span_id", int64(s.ID)),
	)
	for _, kv := range s.Values {
		attrs = append(attrs, attribute.String(kv.Key, kv.Value))
	}

	startTime := time.Unix(0, int64(s.Start))
	_, otelSpan := e.tracer.Start(parentCtx, s.Name,
		trace.WithTimestamp(startTime),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	otelSpan.SetStatus(codes.Ok, "")

	endTime := startTime
	if s.Exclusive > 0 || s.Inclusive > 0 {
		endTime = time.Unix(0, int64(s.Start+s.Inclusive))
	}
	otelSpan.End(trace.WithTimestamp(endTime))
}

// spanIDFor derives a stable 8-byte OTel SpanID from an internal span id.
func spanIDFor(id span.ID) trace.SpanID {
	var sid trace.SpanID
	binary.BigEndian.PutUint64(sid[:], uint64(id))
	return sid
}

// Shutdown flushes and closes the underlying OTel pipeline.
func (e *OTLPExporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
