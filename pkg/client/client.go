// Package client implements a gRPC client for the PrimeService with optional
// OpenTelemetry metrics and traces.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/go-logr/logr"
	"github.com/memes/primegen"
	api "github.com/memes/primegen/api/v1"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	// Importing this package injects xds://endpoint support into the client.
	_ "google.golang.org/grpc/xds"
)

const (
	// The default name to use when registering OpenTelemetry components.
	DefaultOpenTelemetryClientName = "pkg.client"
)

// A client for the PrimeService.
type PrimeClient struct {
	// The logr.Logger instance to use.
	logger logr.Logger
	// The OpenTelemetry tracer to use for spans.
	tracer trace.Tracer
	// The OpenTelemetry meter to use for metrics.
	meter metric.Meter
	// The prefix to use for metrics.
	prefix string
	// A counter for the number of response errors.
	responseErrors metric.Int64Counter
	// A counter for primes received.
	primes metric.Int64Counter
	// A gauge for request durations.
	durationMs metric.Int64Histogram
}

// Defines a function signature for PrimeClient options.
type PrimeClientOption func(*PrimeClient)

// Create a new PrimeClient with optional settings.
func NewPrimeClient(options ...PrimeClientOption) (*PrimeClient, error) {
	client := &PrimeClient{
		logger: logr.Discard(),
		tracer: tracenoop.NewTracerProvider().Tracer(DefaultOpenTelemetryClientName),
		meter:  metricnoop.NewMeterProvider().Meter(DefaultOpenTelemetryClientName),
		prefix: DefaultOpenTelemetryClientName,
	}
	for _, option := range options {
		option(client)
	}
	var err error
	client.responseErrors, err = client.meter.Int64Counter(
		client.telemetryName("response_errors"),
		metric.WithDescription("The count of error responses received by client"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating response_errors Counter: %w", err)
	}
	client.primes, err = client.meter.Int64Counter(
		client.telemetryName("primes"),
		metric.WithDescription("The count of primes received by client"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating primes Counter: %w", err)
	}
	client.durationMs, err = client.meter.Int64Histogram(
		client.telemetryName("request_duration_ms"),
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating request_duration_ms Histogram: %w", err)
	}
	return client, nil
}

// Use the supplied logr.logger.
func WithLogger(logger logr.Logger) PrimeClientOption {
	return func(c *PrimeClient) {
		c.logger = logger
	}
}

// Add an OpenTelemetry tracer implementation to the PrimeService client.
func WithTracer(tracer trace.Tracer) PrimeClientOption {
	return func(c *PrimeClient) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// Add an OpenTelemetry metric meter implementation to the PrimeService client.
func WithMeter(meter metric.Meter) PrimeClientOption {
	return func(c *PrimeClient) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// Set the prefix to use for OpenTelemetry metrics.
func WithPrefix(prefix string) PrimeClientOption {
	return func(c *PrimeClient) {
		c.prefix = prefix
	}
}

// Generates a name for the metric or span.
func (c *PrimeClient) telemetryName(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

// Record the outcome of a request.
func (c *PrimeClient) record(ctx context.Context, span trace.Span, attributes []attribute.KeyValue, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		c.responseErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
	}
	attributes = append(attributes, attribute.Bool(c.telemetryName("success"), err == nil))
	c.durationMs.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributes(attributes...))
}

// Request count primes of bits bits from the PrimeService on conn, passing each
// to fn in the order the server found them. Returning an error from fn cancels
// the request.
func (c *PrimeClient) Generate(ctx context.Context, conn grpc.ClientConnInterface, bits, count int, fn func(primegen.PrimeResult) error) (err error) {
	logger := c.logger.V(1).WithValues("bits", bits, "count", count)
	logger.Info("Generate: enter")
	attributes := []attribute.KeyValue{
		attribute.Int(c.telemetryName("bits"), bits),
		attribute.String(c.telemetryName("method"), "Generate"),
	}
	ctx, span := c.tracer.Start(ctx, DefaultOpenTelemetryClientName+"/Generate")
	defer span.End()
	span.SetAttributes(append(attributes, attribute.Int(c.telemetryName("count"), count))...)
	start := time.Now()
	defer func() {
		c.record(ctx, span, attributes, start, err)
	}()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	request, err := api.NewGenerateRequest(bits, count)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped by api package
	}
	stream, err := api.NewPrimeServiceClient(conn).Generate(ctx, request)
	if err != nil {
		return fmt.Errorf("failure calling Generate: %w", err)
	}
	received := 0
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failure receiving Generate result %d: %w", received+1, err)
		}
		result, err := api.ParsePrimeMessage(msg)
		if err != nil {
			return err //nolint:wrapcheck // Already wrapped by api package
		}
		received++
		span.AddEvent("Prime received", trace.WithAttributes(attribute.Int(c.telemetryName("index"), result.Index)))
		c.primes.Add(ctx, 1, metric.WithAttributes(attributes...))
		if err := fn(result); err != nil {
			return fmt.Errorf("failed to handle result %d: %w", result.Index, err)
		}
	}
	if received != count {
		return fmt.Errorf("server returned %d of %d results", received, count)
	}
	logger.Info("Generate: exit")
	return nil
}

// Ask the PrimeService on conn for a verdict on value.
func (c *PrimeClient) Check(ctx context.Context, conn grpc.ClientConnInterface, value *big.Int) (verdict primegen.Verdict, err error) {
	logger := c.logger.V(1).WithValues("value", value.String())
	logger.Info("Check: enter")
	attributes := []attribute.KeyValue{
		attribute.Int(c.telemetryName("bits"), value.BitLen()),
		attribute.String(c.telemetryName("method"), "Check"),
	}
	ctx, span := c.tracer.Start(ctx, DefaultOpenTelemetryClientName+"/Check")
	defer span.End()
	span.SetAttributes(attributes...)
	start := time.Now()
	defer func() {
		c.record(ctx, span, attributes, start, err)
	}()
	response, err := api.NewPrimeServiceClient(conn).Check(ctx, wrapperspb.String(value.String()))
	if err != nil {
		return primegen.Verdict{}, fmt.Errorf("failure calling Check: %w", err)
	}
	verdict, metadata, err := api.ParseVerdictMessage(response)
	if err != nil {
		return primegen.Verdict{}, err //nolint:wrapcheck // Already wrapped by api package
	}
	logger.Info("Check: exit", "prime", verdict.Prime, "method", verdict.Method, "metadata", metadata)
	return verdict, nil
}
