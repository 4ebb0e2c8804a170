package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/memes/primegen"
	"github.com/memes/primegen/pkg/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const (
	GenerateServiceName       = "generate"
	MaxAttemptsFlagName       = "max-attempts"
	RedisChannelFlagName      = "redis-channel"
	AMQPURLFlagName           = "amqp-url"
	AMQPExchangeFlagName      = "amqp-exchange"
	AMQPRoutingKeyFlagName    = "amqp-key"
	DefaultGenerateCount      = 1
	elapsedTicksPerSecond     = int64(time.Second / 100)
	elapsedTimeFormat         = "%02d:%02d:%02d.%07d"
	generateBitLengthTemplate = "BitLength: %d bits\n"
)

// Implements the generate sub-command.
func NewGenerateCmd() (*cobra.Command, error) {
	generateCmd := &cobra.Command{
		Use:   GenerateServiceName + " bits [count]",
		Short: "Generate probable primes from random candidates of the requested bit length",
		Long: `Searches for count probable primes, each drawn from bits/8 random bytes, using concurrent workers.
A prime may be shorter than bits when its leading bytes are zero.

Each prime is written to stdout as soon as it is found, and can also be published to a Redis channel and an AMQP exchange.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: generateMain,
	}
	generateCmd.PersistentFlags().Int(MaxAttemptsFlagName, 0, "An optional limit on the number of candidates tested; zero is unlimited")
	generateCmd.PersistentFlags().String(RedisChannelFlagName, sink.DefaultRedisChannel, "The Redis channel to publish primes to when redis-target is set")
	generateCmd.PersistentFlags().String(AMQPURLFlagName, "", "An optional AMQP broker URL that will receive primes")
	generateCmd.PersistentFlags().String(AMQPExchangeFlagName, sink.DefaultAMQPExchange, "The AMQP exchange to publish primes to")
	generateCmd.PersistentFlags().String(AMQPRoutingKeyFlagName, sink.DefaultAMQPRoutingKey, "The AMQP routing key to use for published primes")
	if err := bindPersistentFlags(generateCmd,
		MaxAttemptsFlagName,
		RedisChannelFlagName,
		AMQPURLFlagName,
		AMQPExchangeFlagName,
		AMQPRoutingKeyFlagName,
	); err != nil {
		return nil, err
	}
	return generateCmd, nil
}

// Convert the positional arguments to a validated bit length and count.
func parseGenerateArgs(args []string) (int, int, error) {
	bits, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bits must be an integer: %w", err)
	}
	count := DefaultGenerateCount
	if len(args) > 1 {
		count, err = strconv.Atoi(args[1])
		if err != nil {
			return 0, 0, fmt.Errorf("count must be an integer: %w", err)
		}
	}
	if err := primegen.ValidateRequest(bits, count); err != nil {
		return 0, 0, err //nolint:wrapcheck // Library errors are descriptive
	}
	return bits, count, nil
}

// Format an elapsed duration as hh:mm:ss.fffffff, with seven fractional digits
// of 100ns ticks.
func formatElapsed(elapsed time.Duration) string {
	ticks := int64(elapsed / 100)
	fraction := ticks % elapsedTicksPerSecond
	seconds := ticks / elapsedTicksPerSecond
	return fmt.Sprintf(elapsedTimeFormat, seconds/3600, (seconds/60)%60, seconds%60, fraction)
}

// Build the set of sinks requested through configuration; stdout is always
// included.
func newSinks(out io.Writer) (*sink.MultiSink, error) {
	sinks := []sink.Sink{sink.NewWriterSink(out)}
	if redisTarget := viper.GetString(RedisTargetFlagName); redisTarget != "" {
		sinks = append(sinks, sink.NewRedisSink(redisTarget,
			sink.WithRedisLogger(logger),
			sink.WithRedisChannel(viper.GetString(RedisChannelFlagName)),
		))
	}
	if amqpURL := viper.GetString(AMQPURLFlagName); amqpURL != "" {
		amqpSink, err := sink.NewAMQPSink(amqpURL,
			sink.WithAMQPLogger(logger),
			sink.WithAMQPExchange(viper.GetString(AMQPExchangeFlagName)),
			sink.WithAMQPRoutingKey(viper.GetString(AMQPRoutingKeyFlagName)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create AMQP sink: %w", err)
		}
		sinks = append(sinks, amqpSink)
	}
	return sink.NewMultiSink(sinks...), nil
}

// Generate sub-command entrypoint.
func generateMain(cmd *cobra.Command, args []string) error {
	bits, count, err := parseGenerateArgs(args)
	if err != nil {
		return err
	}
	logger := logger.V(1).WithValues("bits", bits, "count", count)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.V(0).Info("Preparing telemetry")
	shutdownFuncs, err := initTelemetry(ctx, GenerateServiceName)
	defer shutdownAll(context.Background(), shutdownFuncs)
	if err != nil {
		return err
	}
	generator, err := primegen.NewGenerator(
		primegen.WithLogger(logger),
		primegen.WithConcurrency(viper.GetInt(ConcurrencyFlagName)),
		primegen.WithMaxAttempts(viper.GetInt(MaxAttemptsFlagName)),
		primegen.WithMeterProvider(otel.GetMeterProvider()),
		primegen.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}
	out := cmd.OutOrStdout()
	sinks, err := newSinks(out)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error(err, "Error closing sinks")
		}
	}()

	fmt.Fprintf(out, generateBitLengthTemplate, bits)
	start := time.Now()
	err = generator.Generate(ctx, bits, count, func(result primegen.PrimeResult) error {
		return sinks.Publish(ctx, result) //nolint:wrapcheck // Sink errors are wrapped by each sink
	})
	fmt.Fprintf(out, "Time to Generate: %s\n", formatElapsed(time.Since(start)))
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return nil
}
