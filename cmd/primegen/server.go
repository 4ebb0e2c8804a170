package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memes/primegen/pkg/cache"
	"github.com/memes/primegen/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	ServerServiceName        = "server"
	DefaultGRPCListenAddress = ":443"
	AddressFlagName          = "address"
	RESTAddressFlagName      = "rest-address"
	XDSFlagName              = "xds"
	TagFlagName              = "tag"
	AnnotationFlagName       = "annotation"
	TLSClientAuthFlagName    = "tls-client-auth"
	MaxCountFlagName         = "max-count"
	shutdownTimeout          = 60 * time.Second
)

// The subset of gRPC server methods used by server sub-command; satisfied by
// both grpc.Server and xds.GRPCServer.
type grpcServer interface {
	Serve(net.Listener) error
	GracefulStop()
}

// Implements the server sub-command.
func NewServerCmd() (*cobra.Command, error) {
	serverCmd := &cobra.Command{
		Use:   ServerServiceName,
		Short: "Run gRPC service to generate and check probable primes",
		Long: `Launches a gRPC PrimeService server that generates probable primes and checks values for primality.

Generated primes are streamed to the client as they are found. An optional Redis DB can be used to cache Check verdicts. Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		Args: cobra.NoArgs,
		RunE: serverMain,
	}
	serverCmd.PersistentFlags().StringP(AddressFlagName, "a", DefaultGRPCListenAddress, "Address to listen for gRPC PrimeService requests")
	serverCmd.PersistentFlags().String(RESTAddressFlagName, "", "An optional listen address to launch a REST/JSON server")
	serverCmd.PersistentFlags().Bool(XDSFlagName, false, "Use xDS to configure the gRPC server")
	serverCmd.PersistentFlags().StringSliceP(TagFlagName, "t", nil, "An optional tag to add to PrimeService Check metadata; can be repeated")
	serverCmd.PersistentFlags().StringToString(AnnotationFlagName, nil, "An optional key=value annotation to add to PrimeService Check metadata; can be repeated")
	serverCmd.PersistentFlags().Bool(TLSClientAuthFlagName, false, "Require PrimeService clients to provide a valid TLS client certificate")
	serverCmd.PersistentFlags().Int(MaxCountFlagName, server.DefaultMaxCount, "The maximum number of primes a single Generate request may ask for")
	if err := bindPersistentFlags(serverCmd,
		AddressFlagName,
		RESTAddressFlagName,
		XDSFlagName,
		TagFlagName,
		AnnotationFlagName,
		TLSClientAuthFlagName,
		MaxCountFlagName,
	); err != nil {
		return nil, err
	}
	return serverCmd, nil
}

// Server sub-command entrypoint. This function will launch the gRPC PrimeService
// and an optional REST server.
func serverMain(_ *cobra.Command, _ []string) error {
	address := viper.GetString(AddressFlagName)
	restAddress := viper.GetString(RESTAddressFlagName)
	redisTarget := viper.GetString(RedisTargetFlagName)
	logger := logger.V(1).WithValues("address", address, "redisTarget", redisTarget, "restAddress", restAddress)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger.V(0).Info("Preparing telemetry")
	shutdownFuncs, err := initTelemetry(ctx, ServerServiceName)
	defer func() {
		ctx, shutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdown()
		shutdownAll(ctx, shutdownFuncs)
	}()
	if err != nil {
		return err
	}

	logger.V(0).Info("Preparing services")
	options := []server.PrimeServerOption{
		server.WithLogger(logger),
		server.WithConcurrency(viper.GetInt(ConcurrencyFlagName)),
		server.WithMaxCount(viper.GetInt(MaxCountFlagName)),
		server.WithTags(viper.GetStringSlice(TagFlagName)),
		server.WithAnnotations(viper.GetStringMapString(AnnotationFlagName)),
	}
	if redisTarget != "" {
		options = append(options, server.WithCache(cache.NewRedisCache(ctx, redisTarget, cache.WithLogger(logger))))
	}
	tlsCreds, err := newServerTLSCredentials(
		viper.GetString(TLSCertFlagName),
		viper.GetString(TLSKeyFlagName),
		viper.GetStringSlice(CACertFlagName),
		viper.GetBool(TLSClientAuthFlagName),
	)
	if err != nil {
		return err
	}
	options = append(options, server.WithGRPCServerTransportCredentials(tlsCreds))
	primeServer, err := server.NewPrimeServer(options...)
	if err != nil {
		return fmt.Errorf("failed to create PrimeServer: %w", err)
	}
	var grpcSrv grpcServer
	if viper.GetBool(XDSFlagName) {
		xdsServer, err := primeServer.NewXDSServer()
		if err != nil {
			return fmt.Errorf("failed to create xDS server: %w", err)
		}
		grpcSrv = xdsServer
	} else {
		grpcSrv = primeServer.NewGrpcServer()
	}
	var restServer *http.Server
	if restAddress != "" {
		restHandler, err := primeServer.NewRestHandler()
		if err != nil {
			return fmt.Errorf("failed to create new REST handler: %w", err)
		}
		restServer = &http.Server{
			Addr:              restAddress,
			Handler:           restHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.V(0).Info("Starting gRPC service")
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to start gRPC listener: %w", err)
		}
		if err := grpcSrv.Serve(listener); err != nil {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
		return nil
	})
	if restServer != nil {
		g.Go(func() error {
			logger.V(0).Info("Starting REST server")
			if err := restServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("restServer listener returned an error: %w", err)
			}
			return nil
		})
	}

	select {
	case <-interrupt:
		break
	case <-ctx.Done():
		break
	}
	logger.V(0).Info("Shutting down")
	cancel()
	shutdownCtx, shutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdown()
	if restServer != nil {
		if err := restServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "Failed to shutdown REST server cleanly")
		}
	}
	grpcSrv.GracefulStop()
	return g.Wait() //nolint:wrapcheck // Errors are wrapped in each goroutine
}
