package sink_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/memes/primegen"
	"github.com/memes/primegen/pkg/sink"
)

func testResults() []primegen.PrimeResult {
	return []primegen.PrimeResult{
		{Index: 1, Value: big.NewInt(2147483647)},
		{Index: 2, Value: big.NewInt(4294967291)},
	}
}

func TestWriterSink(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	writer := sink.NewWriterSink(&buf)
	for _, result := range testResults() {
		if err := writer.Publish(ctx, result); err != nil {
			t.Fatalf("Publish returned an error: %v", err)
		}
	}
	expected := "1: 2147483647\n\n2: 4294967291\n"
	if actual := buf.String(); actual != expected {
		t.Errorf("Expected %q got %q", expected, actual)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Close returned an error: %v", err)
	}
}

func TestNewMessage(t *testing.T) {
	body, err := json.Marshal(sink.NewMessage(testResults()[0]))
	if err != nil {
		t.Fatalf("Marshal returned an error: %v", err)
	}
	expected := `{"index":1,"value":"2147483647","bits":31}`
	if string(body) != expected {
		t.Errorf("Expected %s got %s", expected, body)
	}
}

type failingSink struct {
	err       error
	published int
	closed    bool
}

func (f *failingSink) Publish(context.Context, primegen.PrimeResult) error {
	f.published++
	return f.err
}

func (f *failingSink) Close() error {
	f.closed = true
	return f.err
}

func TestMultiSink(t *testing.T) {
	ctx := context.Background()
	first := errors.New("first")
	second := errors.New("second")
	sinks := []*failingSink{{err: first}, {}, {err: second}}
	multi := sink.NewMultiSink(sinks[0], nil, sinks[1], sinks[2])
	if multi.Len() != 3 {
		t.Fatalf("Expected 3 sinks, got %d", multi.Len())
	}
	err := multi.Publish(ctx, testResults()[0])
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("Expected both errors, got %v", err)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Errorf("Expected a multierror with 2 errors, got %v", err)
	}
	for i, s := range sinks {
		if s.published != 1 {
			t.Errorf("Sink %d published %d times", i, s.published)
		}
	}
	if err := multi.Close(); err == nil {
		t.Error("Expected an error from Close")
	}
	for i, s := range sinks {
		if !s.closed {
			t.Errorf("Sink %d was not closed", i)
		}
	}
}

func TestMultiSink_Empty(t *testing.T) {
	multi := sink.NewMultiSink()
	if err := multi.Publish(context.Background(), testResults()[0]); err != nil {
		t.Errorf("Publish returned an error: %v", err)
	}
	if err := multi.Close(); err != nil {
		t.Errorf("Close returned an error: %v", err)
	}
}

// The RedisSink should publish a JSON message per result that a subscriber
// receives in order.
func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	mock := miniredis.RunT(t)
	conn, err := redis.Dial("tcp", mock.Addr())
	if err != nil {
		t.Fatalf("Error connecting to miniredis: %v", err)
	}
	defer conn.Close()
	psc := redis.PubSubConn{Conn: conn}
	if err := psc.Subscribe("test-primes"); err != nil {
		t.Fatalf("Subscribe returned an error: %v", err)
	}
	if _, ok := psc.Receive().(redis.Subscription); !ok {
		t.Fatal("Expected a subscription confirmation")
	}

	redisSink := sink.NewRedisSink(mock.Addr(), sink.WithRedisChannel("test-primes"))
	defer redisSink.Close()
	if redisSink.Channel() != "test-primes" {
		t.Errorf("Unexpected channel %s", redisSink.Channel())
	}
	for _, result := range testResults() {
		if err := redisSink.Publish(ctx, result); err != nil {
			t.Fatalf("Publish returned an error: %v", err)
		}
	}
	for _, expected := range testResults() {
		msg, ok := psc.Receive().(redis.Message)
		if !ok {
			t.Fatal("Expected a message")
		}
		var actual sink.Message
		if err := json.Unmarshal(msg.Data, &actual); err != nil {
			t.Fatalf("Unmarshal returned an error: %v", err)
		}
		if actual.Index != expected.Index || actual.Value != expected.Value.String() {
			t.Errorf("Expected %s, got %+v", expected, actual)
		}
	}
}

func TestRedisSink_Unavailable(t *testing.T) {
	mock := miniredis.RunT(t)
	redisSink := sink.NewRedisSink(mock.Addr())
	mock.Close()
	if err := redisSink.Publish(context.Background(), testResults()[0]); err == nil {
		t.Error("Expected an error from a stopped Redis")
	}
}
