package sink

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/memes/primegen"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// The default exchange for results.
	DefaultAMQPExchange = "primegen"
	// The default routing key for results.
	DefaultAMQPRoutingKey = "primes"
)

// The subset of *amqp.Channel used to publish.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes each result as a JSON message to an AMQP exchange.
type AMQPSink struct {
	logger       logr.Logger
	exchange     string
	exchangeType string
	routingKey   string
	conn         *amqp.Connection
	channel      amqpPublisher
}

type AMQPSinkOption func(*AMQPSink)

// Use the supplied logger.
func WithAMQPLogger(logger logr.Logger) AMQPSinkOption {
	return func(s *AMQPSink) {
		s.logger = logger
	}
}

// Publish to exchange instead of DefaultAMQPExchange.
func WithAMQPExchange(exchange string) AMQPSinkOption {
	return func(s *AMQPSink) {
		if exchange != "" {
			s.exchange = exchange
		}
	}
}

// Declare the exchange with kind; the default is "direct".
func WithAMQPExchangeType(kind string) AMQPSinkOption {
	return func(s *AMQPSink) {
		if kind != "" {
			s.exchangeType = kind
		}
	}
}

// Publish with routing key instead of DefaultAMQPRoutingKey.
func WithAMQPRoutingKey(key string) AMQPSinkOption {
	return func(s *AMQPSink) {
		if key != "" {
			s.routingKey = key
		}
	}
}

func newAMQPSink(options ...AMQPSinkOption) *AMQPSink {
	sink := &AMQPSink{
		logger:       logr.Discard(),
		exchange:     DefaultAMQPExchange,
		exchangeType: amqp.ExchangeDirect,
		routingKey:   DefaultAMQPRoutingKey,
	}
	for _, option := range options {
		option(sink)
	}
	return sink
}

// Dial the AMQP broker at uri and declare a durable exchange for results.
func NewAMQPSink(uri string, options ...AMQPSinkOption) (*AMQPSink, error) {
	sink := newAMQPSink(options...)
	l := sink.logger.V(1).WithValues("exchange", sink.exchange, "routingKey", sink.routingKey)
	l.Info("NewAMQPSink: enter")
	config := amqp.Config{
		Vhost:      "/",
		Properties: amqp.NewConnectionProperties(),
	}
	config.Properties.SetClientConnectionName("primegen")
	conn, err := amqp.DialConfig(uri, config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial AMQP broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		sink.exchange,     // name
		sink.exchangeType, // type
		true,              // durable
		false,             // auto-delete
		false,             // internal
		false,             // noWait
		nil,               // arguments
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", sink.exchange, err)
	}
	sink.conn = conn
	sink.channel = channel
	l.Info("NewAMQPSink: exit")
	return sink, nil
}

func (s *AMQPSink) Publish(ctx context.Context, result primegen.PrimeResult) error {
	body, err := marshal(result)
	if err != nil {
		return err
	}
	s.logger.V(2).Info("Publishing result", "index", result.Index, "bytes", len(body))
	if err := s.channel.PublishWithContext(
		ctx,
		s.exchange,
		s.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			AppId:        "primegen",
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish result %d to exchange %s: %w", result.Index, s.exchange, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	var err error
	if s.channel != nil {
		err = s.channel.Close()
	}
	if s.conn != nil {
		if connErr := s.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close AMQP sink: %w", err)
	}
	return nil
}
