package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-leadbot-backend/internal/config"
)

// keepGlobals restores the OTel globals after the test.
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

// memExporter routes SetupOTel to an in-memory exporter for the test.
func memExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	orig := newExporter
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return mem, nil }
	t.Cleanup(func() { newExporter = orig })
	return mem
}

func enabledConfig(ratio float64) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "leadbot-test",
		SampleRatio: ratio,
	}
}

func flush(t *testing.T) {
	t.Helper()
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("SDK provider not installed")
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestSetupOTel_DisabledInstallsOnlyPropagator(t *testing.T) {
	keepGlobals(t)

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "dev")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		t.Fatalf("disabled tracing must not install an SDK provider")
	}

	// An inbound trace id still reaches outbound Telegram/Kafka headers.
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xa1},
		SpanID:     trace.SpanID{0xb2},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(trace.ContextWithRemoteSpanContext(context.Background(), sc), carrier)
	if !strings.HasPrefix(carrier.Get("traceparent"), "00-a1") {
		t.Fatalf("traceparent = %q", carrier.Get("traceparent"))
	}
}

func TestSetupOTel_ExportsSpansWithServiceResource(t *testing.T) {
	keepGlobals(t)
	mem := memExporter(t)

	shutdown, err := SetupOTel(context.Background(), enabledConfig(1), "1.4.0")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("services/LeadMagnetService").Start(context.Background(), "Issue")
	span.End()
	flush(t)

	spans := mem.GetSpans()
	if len(spans) != 1 || spans[0].Name != "Issue" {
		t.Fatalf("spans = %v", spans)
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[string(semconv.ServiceNameKey)] != "leadbot-test" || attrs[string(semconv.ServiceVersionKey)] != "1.4.0" {
		t.Fatalf("resource attributes = %v", attrs)
	}
}

func TestSetupOTel_ZeroRatioDropsNewTraces(t *testing.T) {
	keepGlobals(t)
	mem := memExporter(t)

	shutdown, err := SetupOTel(context.Background(), enabledConfig(0), "dev")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("scheduler").Start(context.Background(), "RunOnce")
	span.End()
	flush(t)
	if n := len(mem.GetSpans()); n != 0 {
		t.Fatalf("exported %d spans; want 0", n)
	}
}

func TestSetupOTel_ExporterErrorLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	orig := newExporter
	t.Cleanup(func() { newExporter = orig })
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
		return nil, errors.New("collector unreachable")
	}

	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	if _, err := SetupOTel(context.Background(), enabledConfig(1), "dev"); err == nil {
		t.Fatalf("expected exporter error")
	}
	if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
		t.Fatalf("globals changed on failure")
	}
}

func TestSetupOTel_RealExporterShutsDown(t *testing.T) {
	keepGlobals(t)

	for _, insecure := range []bool{true, false} {
		cfg := enabledConfig(1)
		cfg.Insecure = insecure
		// The gRPC client dials lazily, so no collector is needed.
		shutdown, err := SetupOTel(context.Background(), cfg, "dev")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if err := shutdown(ctx); err != nil {
			t.Errorf("insecure=%v shutdown: %v", insecure, err)
		}
		cancel()
	}
}

func Test_sampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		d := sampler(tc.ratio).Description()
		if !strings.HasPrefix(d, "ParentBased{root:"+tc.want) {
			t.Errorf("sampler(%v) = %s; want root %s", tc.ratio, d, tc.want)
		}
	}
}

func Test_grpcOptions(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		if n := len(grpcOptions(config.OTELConfig{Endpoint: "otel:4317", Insecure: insecure})); n != 2 {
			t.Fatalf("insecure=%v: %d options; want 2", insecure, n)
		}
	}
}
