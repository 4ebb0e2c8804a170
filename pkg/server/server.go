// Package server implements a gRPC server (and optional REST handler) that
// satisfies the PrimeServiceServer interface requirements, with optional
// OpenTelemetry metrics and traces.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/memes/primegen"
	api "github.com/memes/primegen/api/v1"
	cachepkg "github.com/memes/primegen/pkg/cache"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/xds"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// The default name to use when using OpenTelemetry components.
	OpenTelemetryPackageIdentifier = "pkg.server"
	// The default limit on the number of primes in a single Generate request.
	DefaultMaxCount = 1000
)

var (
	ErrCountTooLarge = errors.New("count exceeds the server limit")
	ErrInvalidValue  = errors.New("value is not a decimal integer")
)

type PrimeServer struct {
	api.UnimplementedPrimeServiceServer
	// The logr.Logger implementation to use
	logger logr.Logger
	// An optional cache implementation for Check verdicts
	cache cachepkg.Cache
	// Holds the instance specific metadata that will be returned in Check responses
	metadata api.Metadata
	// The number of concurrent search workers per Generate request
	concurrency int
	// The maximum number of primes a single request may ask for
	maxCount int
	// The generator shared by all requests
	generator *primegen.Generator
	// A counter for Generate and Check requests
	requests metric.Int64Counter
	// A counter for primes streamed to clients
	primes metric.Int64Counter
	// A histogram of Generate request durations
	generateMs metric.Int64Histogram
	// A counter for the number of errors returned by cache
	cacheErrors metric.Int64Counter
	// A counter for cache hits
	cacheHits metric.Int64Counter
	// A counter for cache misses
	cacheMisses metric.Int64Counter
	// A set of gRPC ServerOptions to use
	serverOptions []grpc.ServerOption
}

// Defines the function signature for PrimeServer options.
type PrimeServerOption func(*PrimeServer)

// Create a new PrimeServer and apply any options.
//
//nolint:funlen // OTEL options make this function appear longer than expected.
func NewPrimeServer(options ...PrimeServerOption) (*PrimeServer, error) {
	var hostname string
	if host, err := os.Hostname(); err == nil {
		hostname = host
	} else {
		hostname = "unknown"
	}
	server := &PrimeServer{
		logger: logr.Discard(),
		cache:  cachepkg.NewNoopCache(),
		metadata: api.Metadata{
			Identity:    hostname,
			Tags:        []string{},
			Annotations: map[string]string{},
		},
		concurrency: primegen.DefaultConcurrency,
		maxCount:    DefaultMaxCount,
		serverOptions: []grpc.ServerOption{
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
		},
	}
	for _, option := range options {
		option(server)
	}
	var err error
	server.generator, err = primegen.NewGenerator(
		primegen.WithLogger(server.logger),
		primegen.WithConcurrency(server.concurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	meter := otel.Meter(OpenTelemetryPackageIdentifier)
	server.requests, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".requests",
		metric.WithDescription("The count of PrimeService requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating requests Counter: %w", err)
	}
	server.primes, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".primes",
		metric.WithDescription("The count of primes streamed to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating primes Counter: %w", err)
	}
	server.generateMs, err = meter.Int64Histogram(
		OpenTelemetryPackageIdentifier+".generate_duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("The duration (ms) of Generate requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating generateMs Histogram: %w", err)
	}
	server.cacheErrors, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_errors",
		metric.WithDescription("The count of error responses from verdict cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheErrors Counter: %w", err)
	}
	server.cacheHits, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_hits",
		metric.WithDescription("The count of cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheHits Counter: %w", err)
	}
	server.cacheMisses, err = meter.Int64Counter(
		OpenTelemetryPackageIdentifier+".cache_misses",
		metric.WithDescription("The count of cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("error returned while creating cacheMisses Counter: %w", err)
	}
	return server, nil
}

// Use the supplied logger for the server and primegen packages.
func WithLogger(logger logr.Logger) PrimeServerOption {
	return func(s *PrimeServer) {
		s.logger = logger
		primegen.Logger = logger
	}
}

// Use the Cache implementation to store Check verdicts to avoid repeating the
// verification of a value that has already been checked.
func WithCache(cache cachepkg.Cache) PrimeServerOption {
	return func(s *PrimeServer) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// Set the number of concurrent search workers used for each Generate request.
func WithConcurrency(concurrency int) PrimeServerOption {
	return func(s *PrimeServer) {
		s.concurrency = concurrency
	}
}

// Set the maximum count accepted by Generate.
func WithMaxCount(maxCount int) PrimeServerOption {
	return func(s *PrimeServer) {
		if maxCount > 0 {
			s.maxCount = maxCount
		}
	}
}

// Add the string tags to the server's metadata.
func WithTags(tags []string) PrimeServerOption {
	return func(s *PrimeServer) {
		if tags != nil {
			s.metadata.Tags = append(s.metadata.Tags, tags...)
		}
	}
}

// Add the key-value annotations to the server's metadata.
func WithAnnotations(annotations map[string]string) PrimeServerOption {
	return func(s *PrimeServer) {
		for k, v := range annotations {
			s.metadata.Annotations[k] = v
		}
	}
}

// Set the TransportCredentials to use for PrimeService gRPC listener.
func WithGRPCServerTransportCredentials(serverCredentials credentials.TransportCredentials) PrimeServerOption {
	return func(s *PrimeServer) {
		if serverCredentials != nil {
			s.serverOptions = append(s.serverOptions, grpc.Creds(serverCredentials))
		}
	}
}

// Validate a generation request against the library rules and this server's limits.
func (s *PrimeServer) validate(bits, count int) error {
	if err := primegen.ValidateRequest(bits, count); err != nil {
		return status.Error(codes.InvalidArgument, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	if count > s.maxCount {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("%v: %d > %d", ErrCountTooLarge, count, s.maxCount)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	return nil
}

// Convert a generator error into a gRPC status.
func generateStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	case primegen.IsAborted(err):
		return status.Error(codes.Canceled, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	case errors.Is(err, primegen.ErrMaxAttempts):
		return status.Error(codes.ResourceExhausted, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	default:
		return status.Error(codes.Internal, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
}

// Run a generation request, passing each result to emit.
func (s *PrimeServer) generate(ctx context.Context, bits, count int, emit func(primegen.PrimeResult) error) error {
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bits", bits),
		attribute.String(OpenTelemetryPackageIdentifier+".method", "Generate"),
	}
	ctx, span := otel.Tracer(OpenTelemetryPackageIdentifier).Start(ctx, OpenTelemetryPackageIdentifier+"/Generate")
	defer span.End()
	span.SetAttributes(append(attributes, attribute.Int(OpenTelemetryPackageIdentifier+".count", count))...)
	s.requests.Add(ctx, 1, metric.WithAttributes(attributes...))
	if err := s.validate(bits, count); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	ts := time.Now()
	err := s.generator.Generate(ctx, bits, count, func(result primegen.PrimeResult) error {
		if err := emit(result); err != nil {
			return err
		}
		s.primes.Add(ctx, 1, metric.WithAttributes(attributes...))
		return nil
	})
	s.generateMs.Record(ctx, time.Since(ts).Milliseconds(), metric.WithAttributes(attributes...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return generateStatus(err)
	}
	return nil
}

// Implement the PrimeService Generate RPC method.
func (s *PrimeServer) Generate(in *structpb.Struct, stream api.PrimeService_GenerateServer) error {
	bits, count, err := api.ParseGenerateRequest(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	logger := s.logger.WithValues("bits", bits, "count", count)
	logger.Info("Generate: enter")
	if err := s.generate(stream.Context(), bits, count, func(result primegen.PrimeResult) error {
		msg, err := api.NewPrimeMessage(result)
		if err != nil {
			return err //nolint:wrapcheck // Already wrapped by api package
		}
		return stream.Send(msg)
	}); err != nil {
		logger.Error(err, "Generate failed")
		return err
	}
	logger.Info("Generate: exit")
	return nil
}

// Parse a decimal value received from a client.
func parseValue(value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%v: %q", ErrInvalidValue, value)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	return n, nil
}

// Verify the value, consulting the cache first.
func (s *PrimeServer) verify(ctx context.Context, value *big.Int) (primegen.Verdict, error) {
	key := value.Text(16)
	attributes := []attribute.KeyValue{
		attribute.Int(OpenTelemetryPackageIdentifier+".bits", value.BitLen()),
		attribute.String(OpenTelemetryPackageIdentifier+".method", "Check"),
	}
	ctx, span := otel.Tracer(OpenTelemetryPackageIdentifier).Start(ctx, OpenTelemetryPackageIdentifier+"/Check")
	defer span.End()
	span.SetAttributes(attributes...)
	s.requests.Add(ctx, 1, metric.WithAttributes(attributes...))
	span.AddEvent("Checking cache")
	cached, err := s.cache.GetValue(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.cacheErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		return primegen.Verdict{}, status.Error(codes.Internal, fmt.Sprintf("cache %T GetValue method returned an error: %v", s.cache, err)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	if verdict, ok := decodeVerdict(cached); ok {
		span.SetAttributes(attribute.Bool(OpenTelemetryPackageIdentifier+".cache_hit", true))
		s.cacheHits.Add(ctx, 1, metric.WithAttributes(attributes...))
		return verdict, nil
	}
	span.SetAttributes(attribute.Bool(OpenTelemetryPackageIdentifier+".cache_hit", false))
	span.AddEvent("Verifying value")
	s.cacheMisses.Add(ctx, 1, metric.WithAttributes(attributes...))
	verdict, err := primegen.Verify(value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return primegen.Verdict{}, status.Error(codes.Internal, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	if err := s.cache.SetValue(ctx, key, encodeVerdict(verdict)); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		s.cacheErrors.Add(ctx, 1, metric.WithAttributes(attributes...))
		return primegen.Verdict{}, status.Error(codes.Internal, fmt.Sprintf("cache %T SetValue method returned an error: %v", s.cache, err)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	return verdict, nil
}

// Implement the PrimeService Check RPC method.
func (s *PrimeServer) Check(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	logger := s.logger.WithValues("value", in.GetValue())
	logger.Info("Check: enter")
	value, err := parseValue(in.GetValue())
	if err != nil {
		return nil, err
	}
	verdict, err := s.verify(ctx, value)
	if err != nil {
		logger.Error(err, "Check failed")
		return nil, err
	}
	msg, err := api.NewVerdictMessage(value, verdict, s.metadata)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error()) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	logger.Info("Check: exit", "prime", verdict.Prime, "method", verdict.Method)
	return msg, nil
}

// Cached verdicts are stored as "1:<method>" or "0:<method>".
func encodeVerdict(verdict primegen.Verdict) string {
	if verdict.Prime {
		return "1:" + verdict.Method
	}
	return "0:" + verdict.Method
}

func decodeVerdict(value string) (primegen.Verdict, bool) {
	prime, method, ok := strings.Cut(value, ":")
	if !ok || method == "" {
		return primegen.Verdict{}, false
	}
	switch prime {
	case "1":
		return primegen.Verdict{Prime: true, Method: method}, true
	case "0":
		return primegen.Verdict{Prime: false, Method: method}, true
	default:
		return primegen.Verdict{}, false
	}
}

// Register the health, reflection, and PrimeService services on the registrar.
func (s *PrimeServer) register(registrar reflection.GRPCServer) {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(registrar, healthServer)
	api.RegisterPrimeServiceServer(registrar, s)
	reflection.Register(registrar)
}

// Create a new grpc.Server that is ready to be attached to a net.Listener.
func (s *PrimeServer) NewGrpcServer() *grpc.Server {
	s.logger.V(1).Info("Building a standard gRPC server")
	grpcServer := grpc.NewServer(s.serverOptions...)
	s.register(grpcServer)
	return grpcServer
}

// Create a new xds.GRPCServer that is ready to be attached to a net.Listener.
func (s *PrimeServer) NewXDSServer() (*xds.GRPCServer, error) {
	s.logger.V(1).Info("xDS is enabled; building an xDS aware gRPC server")
	xdsServer, err := xds.NewGRPCServer(s.serverOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new xDS gRPC server: %w", err)
	}
	s.register(xdsServer)
	return xdsServer, nil
}
