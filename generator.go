package primegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// The name to use when creating OpenTelemetry components.
const OpenTelemetryPackageIdentifier = "primegen"

// PrimeResult pairs a probable prime with its completion index. Indices start at
// 1 and follow the order in which workers found their primes, not the order in
// which the work was dispatched. Treat a PrimeResult as immutable.
type PrimeResult struct {
	Index int
	Value *big.Int
}

func (r PrimeResult) String() string {
	return fmt.Sprintf("%d: %s", r.Index, r.Value.String())
}

// Generator coordinates concurrent searches for probable primes.
type Generator struct {
	logger         logr.Logger
	concurrency    int
	maxAttempts    int
	reader         io.Reader
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	sampler *Sampler
	tester  *Tester
	tracer  trace.Tracer
	// Counts every candidate drawn from the random source.
	candidates metric.Int64Counter
	// Counts candidates discarded by QuickAccept.
	rejected metric.Int64Counter
	// Counts candidates found composite by Miller-Rabin.
	composites metric.Int64Counter
	// Counts primes delivered to the caller.
	primes metric.Int64Counter
	// Duration of complete generation runs.
	durationMs metric.Int64Histogram
}

// Defines the function signature for Generator options.
type GeneratorOption func(*Generator)

// Create a new Generator and apply any options.
func NewGenerator(options ...GeneratorOption) (*Generator, error) {
	generator := &Generator{
		logger:         Logger,
		concurrency:    DefaultConcurrency,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, option := range options {
		option(generator)
	}
	if generator.concurrency < 1 {
		return nil, fmt.Errorf("invalid concurrency %d: %w", generator.concurrency, ErrInvalidConcurrency)
	}
	generator.sampler = NewSampler(generator.reader)
	generator.tester = NewTester(DefaultRounds, generator.sampler)
	generator.tracer = generator.tracerProvider.Tracer(OpenTelemetryPackageIdentifier)
	meter := generator.meterProvider.Meter(OpenTelemetryPackageIdentifier)
	var err error
	generator.candidates, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".candidates",
		metric.WithDescription("The count of random candidates drawn"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating candidates Counter: %w", err)
	}
	generator.rejected, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".quick_rejects",
		metric.WithDescription("The count of candidates discarded before Miller-Rabin"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating quick_rejects Counter: %w", err)
	}
	generator.composites, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".composites",
		metric.WithDescription("The count of candidates found composite by Miller-Rabin"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating composites Counter: %w", err)
	}
	generator.primes, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".primes",
		metric.WithDescription("The count of probable primes delivered"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating primes Counter: %w", err)
	}
	generator.durationMs, err = meter.Int64Histogram(
		OpenTelemetryPackageIdentifier+".generate_duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of generation runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating generate_duration_ms Histogram: %w", err)
	}
	return generator, nil
}

// Use the supplied logger.
func WithLogger(logger logr.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// Set the maximum number of concurrent search workers; the default is
// DefaultConcurrency.
func WithConcurrency(concurrency int) GeneratorOption {
	return func(g *Generator) {
		g.concurrency = concurrency
	}
}

// Bound the number of candidates a single search may draw before the run fails
// with ErrMaxAttempts. Zero, the default, means unbounded.
func WithMaxAttempts(maxAttempts int) GeneratorOption {
	return func(g *Generator) {
		if maxAttempts >= 0 {
			g.maxAttempts = maxAttempts
		}
	}
}

// Draw candidates and witnesses from reader instead of crypto/rand.Reader. The
// reader must be safe for concurrent use.
func WithRandom(reader io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.reader = reader
	}
}

// Use the MeterProvider for generator metrics instead of the global provider.
func WithMeterProvider(provider metric.MeterProvider) GeneratorOption {
	return func(g *Generator) {
		if provider != nil {
			g.meterProvider = provider
		}
	}
}

// Use the TracerProvider for generator spans instead of the global provider.
func WithTracerProvider(provider trace.TracerProvider) GeneratorOption {
	return func(g *Generator) {
		if provider != nil {
			g.tracerProvider = provider
		}
	}
}

// Concurrency returns the configured worker limit.
func (g *Generator) Concurrency() int {
	return g.concurrency
}

// Generate searches for count probable primes of bitLength bits and passes each
// to emit as soon as it is found. Emit is always called from the calling
// goroutine, one result at a time, with indices 1..count in completion order.
//
// Generate returns nil only after count results have been emitted. A failure of
// the random source, an exhausted attempt budget, an error from emit, or a
// cancelled context aborts the whole run.
func (g *Generator) Generate(ctx context.Context, bitLength, count int, emit func(PrimeResult) error) error {
	if err := ValidateRequest(bitLength, count); err != nil {
		return err
	}
	logger := g.logger.V(1).WithValues("bitLength", bitLength, "count", count)
	logger.Info("Generate: enter")
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bit_length", bitLength),
	}
	ctx, span := g.tracer.Start(ctx, OpenTelemetryPackageIdentifier+"/Generate")
	defer span.End()
	span.SetAttributes(append(attributes, attribute.Int(OpenTelemetryPackageIdentifier+".count", count))...)
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	byteLength := bitLength / 8
	workers := min(g.concurrency, count)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	found := make(chan *big.Int)
	finished := make(chan error, 1)
	go func() {
		for unit := 0; unit < count && groupCtx.Err() == nil; unit++ {
			group.Go(func() error {
				value, err := g.search(groupCtx, unit, byteLength, attributes)
				if err != nil {
					return err
				}
				select {
				case found <- value:
					return nil
				case <-groupCtx.Done():
					return groupCtx.Err() //nolint:wrapcheck // Reported by the collector
				}
			})
		}
		finished <- group.Wait()
		close(found)
	}()

	// Collector: the only place indices are assigned.
	index := 0
	var emitErr error
	for value := range found {
		if emitErr != nil {
			continue
		}
		index++
		span.AddEvent("Prime found", trace.WithAttributes(attribute.Int(OpenTelemetryPackageIdentifier+".index", index)))
		g.primes.Add(ctx, 1, metric.WithAttributes(attributes...))
		if emitErr = emit(PrimeResult{Index: index, Value: value}); emitErr != nil {
			cancel()
		}
	}
	err := <-finished
	switch {
	case emitErr != nil:
		err = fmt.Errorf("failed to emit result %d: %w", index, emitErr)
	case err != nil:
		err = fmt.Errorf("prime search aborted after %d of %d results: %w", index, count, err)
	case index != count && ctx.Err() != nil:
		err = fmt.Errorf("prime search aborted after %d of %d results: %w", index, count, ctx.Err())
	case index != count:
		err = fmt.Errorf("prime search returned %d of %d results", index, count)
	}
	g.durationMs.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributes(attributes...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		logger.Error(err, "Generate failed")
		return err
	}
	logger.Info("Generate: exit", "elapsed", time.Since(start))
	return nil
}

// GenerateAll collects the results of Generate into a slice ordered by
// completion index.
func (g *Generator) GenerateAll(ctx context.Context, bitLength, count int) ([]PrimeResult, error) {
	results := make([]PrimeResult, 0, count)
	if err := g.Generate(ctx, bitLength, count, func(result PrimeResult) error {
		results = append(results, result)
		return nil
	}); err != nil {
		return nil, err
	}
	return results, nil
}

// Draw candidates until one passes both the quick reject filter and the
// Miller-Rabin test.
func (g *Generator) search(ctx context.Context, unit, byteLength int, attributes []attribute.KeyValue) (*big.Int, error) {
	logger := g.logger.V(2).WithValues("unit", unit)
	logger.Info("search: enter")
	var sampled, rejected, composites int64
	defer func() {
		options := metric.WithAttributes(attributes...)
		g.candidates.Add(ctx, sampled, options)
		g.rejected.Add(ctx, rejected, options)
		g.composites.Add(ctx, composites, options)
	}()
	for attempt := 1; g.maxAttempts == 0 || attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err //nolint:wrapcheck // Reported by the collector
		}
		candidate, err := g.sampler.Candidate(byteLength)
		if err != nil {
			return nil, err
		}
		sampled++
		if !QuickAccept(candidate) {
			rejected++
			continue
		}
		prime, err := g.tester.ProbablyPrime(candidate, byteLength)
		if err != nil {
			return nil, err
		}
		if prime {
			logger.Info("search: exit", "attempts", attempt)
			return candidate, nil
		}
		composites++
	}
	return nil, fmt.Errorf("search unit %d gave up after %d attempts: %w", unit, g.maxAttempts, ErrMaxAttempts)
}

// IsAborted returns true if err reports a run that was cancelled rather than one
// that failed.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
