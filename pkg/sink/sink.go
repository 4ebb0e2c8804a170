// Package sink delivers generated primes to consumers as they are found: a
// console writer, Redis pub/sub channels and AMQP exchanges.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/memes/primegen"
)

// Sink receives each PrimeResult in completion order.
type Sink interface {
	// Publish delivers a single result.
	Publish(ctx context.Context, result primegen.PrimeResult) error
	// Close releases any resources held by the Sink.
	Close() error
}

// Message is the JSON representation of a PrimeResult published to brokers.
type Message struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Bits  int    `json:"bits"`
}

// NewMessage converts the result to a Message.
func NewMessage(result primegen.PrimeResult) Message {
	return Message{
		Index: result.Index,
		Value: result.Value.String(),
		Bits:  result.Value.BitLen(),
	}
}

func marshal(result primegen.PrimeResult) ([]byte, error) {
	body, err := json.Marshal(NewMessage(result))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result %d: %w", result.Index, err)
	}
	return body, nil
}

// WriterSink writes each result as "<index>: <value>" on its own line, with a
// blank line between consecutive results.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	written bool
}

// Create a new WriterSink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Publish(_ context.Context, result primegen.PrimeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	format := "%s\n"
	if s.written {
		format = "\n%s\n"
	}
	if _, err := fmt.Fprintf(s.w, format, result); err != nil {
		return fmt.Errorf("failed to write result %d: %w", result.Index, err)
	}
	s.written = true
	return nil
}

// Close is a no-op; the caller owns the writer.
func (s *WriterSink) Close() error {
	return nil
}

// MultiSink publishes every result to each of its sinks.
type MultiSink struct {
	sinks []Sink
}

// Create a MultiSink that fans out to sinks, ignoring nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	multi := &MultiSink{}
	for _, sink := range sinks {
		if sink != nil {
			multi.sinks = append(multi.sinks, sink)
		}
	}
	return multi
}

// Publish delivers the result to every sink, even when an earlier sink fails,
// and returns the failures combined.
func (m *MultiSink) Publish(ctx context.Context, result primegen.PrimeResult) error {
	var errs *multierror.Error
	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, result); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Close closes every sink and returns the failures combined.
func (m *MultiSink) Close() error {
	var result *multierror.Error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}
