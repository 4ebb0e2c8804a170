package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/memes/primegen"
	"github.com/memes/primegen/pkg/client"
	"github.com/memes/primegen/pkg/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
)

const (
	ClientServiceName     = "client"
	DefaultMaxTimeout     = 5 * time.Minute
	MaxTimeoutFlagName    = "max-timeout"
	InsecureFlagName      = "insecure"
	AuthorityFlagName     = "authority"
	CheckFlagName         = "check"
	clientBitsArgPosition = 1
)

var errMissingBits = errors.New("bits must be provided when no values are being checked")

// Implements the client sub-command which connects to a PrimeService server and
// either requests generated primes or asks for verdicts on values.
func NewClientCmd() (*cobra.Command, error) {
	clientCmd := &cobra.Command{
		Use:   ClientServiceName + " target [bits [count]]",
		Short: "Run a gRPC PrimeService client to request probable primes",
		Long: `Launches a gRPC client that will connect to a PrimeService target and request count probable primes of bits bits.

If one or more --check values are provided the client asks the target for a verdict on each value instead. Metrics and traces will be sent to an OpenTelemetry collection endpoint, if specified.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: clientMain,
	}
	clientCmd.PersistentFlags().DurationP(MaxTimeoutFlagName, "m", DefaultMaxTimeout, "The maximum timeout for a PrimeService request")
	clientCmd.PersistentFlags().Bool(InsecureFlagName, false, "Connect to PrimeService without TLS")
	clientCmd.PersistentFlags().String(AuthorityFlagName, "", "Set the authoritative name of the PrimeService target for TLS verification, overriding hostname")
	clientCmd.PersistentFlags().StringSlice(CheckFlagName, nil, "A decimal value to check with PrimeService; can be repeated")
	if err := bindPersistentFlags(clientCmd,
		MaxTimeoutFlagName,
		InsecureFlagName,
		AuthorityFlagName,
		CheckFlagName,
	); err != nil {
		return nil, err
	}
	return clientCmd, nil
}

// Returns plaintext credentials when --insecure is set, TLS credentials
// otherwise.
func newClientTransportCredentials() (credentials.TransportCredentials, error) {
	if viper.GetBool(InsecureFlagName) {
		logger.V(0).Info("Client will not use TLS")
		return grpcinsecure.NewCredentials(), nil
	}
	return newClientTLSCredentials(
		viper.GetString(TLSCertFlagName),
		viper.GetString(TLSKeyFlagName),
		viper.GetString(AuthorityFlagName),
		viper.GetStringSlice(CACertFlagName),
	)
}

// Client sub-command entrypoint.
func clientMain(cmd *cobra.Command, args []string) error {
	target := args[0]
	checkValues := viper.GetStringSlice(CheckFlagName)
	logger := logger.V(1).WithValues("target", target, "checkValues", checkValues)
	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration(MaxTimeoutFlagName))
	defer cancel()
	logger.V(0).Info("Preparing telemetry")
	shutdownFuncs, err := initTelemetry(ctx, ClientServiceName)
	defer shutdownAll(context.Background(), shutdownFuncs)
	if err != nil {
		return err
	}
	tlsCreds, err := newClientTransportCredentials()
	if err != nil {
		return err
	}
	dialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(tlsCreds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if authority := viper.GetString(AuthorityFlagName); authority != "" {
		dialOptions = append(dialOptions, grpc.WithAuthority(authority))
	}
	conn, err := grpc.NewClient(target, dialOptions...)
	if err != nil {
		return fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}
	defer conn.Close()
	primeClient, err := client.NewPrimeClient(
		client.WithLogger(logger),
		client.WithTracer(otel.Tracer(ClientServiceName)),
		client.WithMeter(otel.Meter(ClientServiceName)),
		client.WithPrefix(ClientServiceName),
	)
	if err != nil {
		return fmt.Errorf("failed to create PrimeClient: %w", err)
	}
	out := cmd.OutOrStdout()

	if len(checkValues) > 0 {
		for _, arg := range checkValues {
			value, ok := new(big.Int).SetString(arg, 10)
			if !ok {
				return fmt.Errorf("%w: %q", errInvalidValue, arg)
			}
			verdict, err := primeClient.Check(ctx, conn, value)
			if err != nil {
				return err //nolint:wrapcheck // Client errors are wrapped
			}
			result := "composite"
			if verdict.Prime {
				result = "prime"
			}
			fmt.Fprintf(out, "%s: %s (%s)\n", value, result, verdict.Method)
		}
		return nil
	}

	if len(args) <= clientBitsArgPosition {
		return errMissingBits
	}
	bits, count, err := parseGenerateArgs(args[clientBitsArgPosition:])
	if err != nil {
		return err
	}
	writer := sink.NewWriterSink(out)
	fmt.Fprintf(out, generateBitLengthTemplate, bits)
	start := time.Now()
	err = primeClient.Generate(ctx, conn, bits, count, func(result primegen.PrimeResult) error {
		return writer.Publish(ctx, result)
	})
	fmt.Fprintf(out, "Time to Generate: %s\n", formatElapsed(time.Since(start)))
	if err != nil {
		return err //nolint:wrapcheck // Client errors are wrapped
	}
	return nil
}

