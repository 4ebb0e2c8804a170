package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/memes/primegen"
	api "github.com/memes/primegen/api/v1"
	"github.com/memes/primegen/pkg/sink"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	// Content type of the streamed Generate response.
	NDJSONContentType = "application/x-ndjson"
)

// Write a gRPC status error as an HTTP error response.
func (s *PrimeServer) writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	http.Error(w, st.Message(), runtime.HTTPStatusFromCode(st.Code()))
}

func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("query parameter %s must be an integer: %v", name, err)) //nolint:wrapcheck // Errors returned should be gRPC statuses
	}
	return i, nil
}

// Stream each prime as a line of JSON, flushing after every line so clients see
// results as soon as they are found.
func (s *PrimeServer) handleGenerate(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	bits, err := queryInt(r, "bits", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	count, err := queryInt(r, "count", 1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	logger := s.logger.WithValues("bits", bits, "count", count)
	logger.Info("handleGenerate: enter")
	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	started := false
	err = s.generate(r.Context(), bits, count, func(result primegen.PrimeResult) error {
		if !started {
			w.Header().Set("Content-Type", NDJSONContentType)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := encoder.Encode(sink.NewMessage(result)); err != nil {
			return fmt.Errorf("failed to write result %d: %w", result.Index, err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		logger.Error(err, "Generate failed")
		if !started {
			s.writeError(w, err)
		}
		return
	}
	logger.Info("handleGenerate: exit")
}

// Return the verdict for a single value as JSON.
func (s *PrimeServer) handleCheck(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	value, err := parseValue(pathParams["value"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	verdict, err := s.verify(r.Context(), value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg, err := api.NewVerdictMessage(value, verdict, s.metadata)
	if err != nil {
		s.writeError(w, status.Error(codes.Internal, err.Error()))
		return
	}
	body, err := protojson.Marshal(msg)
	if err != nil {
		s.writeError(w, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.logger.Error(err, "Writing verdict to response raised an error; continuing")
	}
}

// Create a new REST handler that serves the PrimeService operations directly,
// without a gRPC round trip.
func (s *PrimeServer) NewRestHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := mux.HandlePath(http.MethodGet, "/api/v1/primes", s.handleGenerate); err != nil {
		return nil, fmt.Errorf("failed to register /api/v1/primes handler: %w", err)
	}
	if err := mux.HandlePath(http.MethodGet, "/api/v1/check/{value}", s.handleCheck); err != nil {
		return nil, fmt.Errorf("failed to register /api/v1/check handler: %w", err)
	}
	return otelhttp.NewHandler(mux,
		OpenTelemetryPackageIdentifier+"/RestHandler",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	), nil
}
