package v1

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/memes/primegen"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used in PrimeService messages.
const (
	FieldBits        = "bits"
	FieldCount       = "count"
	FieldIndex       = "index"
	FieldValue       = "value"
	FieldPrime       = "prime"
	FieldMethod      = "method"
	FieldIdentity    = "identity"
	FieldTags        = "tags"
	FieldAnnotations = "annotations"
)

// The message is missing a field, or a field has the wrong type.
var ErrMalformedMessage = errors.New("malformed message")

// Metadata describes the server instance that produced a response.
type Metadata struct {
	Identity    string
	Tags        []string
	Annotations map[string]string
}

// NewGenerateRequest returns the Generate request message for count primes of
// bits bits.
func NewGenerateRequest(bits, count int) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(map[string]interface{}{
		FieldBits:  bits,
		FieldCount: count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	return msg, nil
}

// ParseGenerateRequest extracts the bit length and count from a Generate request.
// The values are not validated beyond being integers.
func ParseGenerateRequest(msg *structpb.Struct) (int, int, error) {
	bits, err := intField(msg, FieldBits)
	if err != nil {
		return 0, 0, err
	}
	count, err := intField(msg, FieldCount)
	if err != nil {
		return 0, 0, err
	}
	return bits, count, nil
}

// NewPrimeMessage returns the streamed message for a single result. The value is
// carried as a decimal string since it cannot be represented as a double.
func NewPrimeMessage(result primegen.PrimeResult) (*structpb.Struct, error) {
	if result.Value == nil {
		return nil, fmt.Errorf("result %d has no value: %w", result.Index, ErrMalformedMessage)
	}
	msg, err := structpb.NewStruct(map[string]interface{}{
		FieldIndex: result.Index,
		FieldValue: result.Value.String(),
		FieldBits:  result.Value.BitLen(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prime message: %w", err)
	}
	return msg, nil
}

// ParsePrimeMessage converts a streamed message back to a PrimeResult.
func ParsePrimeMessage(msg *structpb.Struct) (primegen.PrimeResult, error) {
	index, err := intField(msg, FieldIndex)
	if err != nil {
		return primegen.PrimeResult{}, err
	}
	value, err := bigField(msg, FieldValue)
	if err != nil {
		return primegen.PrimeResult{}, err
	}
	return primegen.PrimeResult{Index: index, Value: value}, nil
}

// NewVerdictMessage returns the Check response for value.
func NewVerdictMessage(value *big.Int, verdict primegen.Verdict, metadata Metadata) (*structpb.Struct, error) {
	tags := make([]interface{}, 0, len(metadata.Tags))
	for _, tag := range metadata.Tags {
		tags = append(tags, tag)
	}
	annotations := make(map[string]interface{}, len(metadata.Annotations))
	for k, v := range metadata.Annotations {
		annotations[k] = v
	}
	msg, err := structpb.NewStruct(map[string]interface{}{
		FieldValue:       value.String(),
		FieldPrime:       verdict.Prime,
		FieldMethod:      verdict.Method,
		FieldIdentity:    metadata.Identity,
		FieldTags:        tags,
		FieldAnnotations: annotations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build verdict message: %w", err)
	}
	return msg, nil
}

// ParseVerdictMessage extracts the verdict and server metadata from a Check
// response. Missing metadata fields are left empty.
func ParseVerdictMessage(msg *structpb.Struct) (primegen.Verdict, Metadata, error) {
	fields := msg.GetFields()
	prime, ok := fields[FieldPrime].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return primegen.Verdict{}, Metadata{}, fmt.Errorf("field %q is not a bool: %w", FieldPrime, ErrMalformedMessage)
	}
	verdict := primegen.Verdict{
		Prime:  prime.BoolValue,
		Method: fields[FieldMethod].GetStringValue(),
	}
	metadata := Metadata{
		Identity:    fields[FieldIdentity].GetStringValue(),
		Tags:        []string{},
		Annotations: map[string]string{},
	}
	for _, tag := range fields[FieldTags].GetListValue().GetValues() {
		metadata.Tags = append(metadata.Tags, tag.GetStringValue())
	}
	for k, v := range fields[FieldAnnotations].GetStructValue().GetFields() {
		metadata.Annotations[k] = v.GetStringValue()
	}
	return verdict, metadata, nil
}

func intField(msg *structpb.Struct, name string) (int, error) {
	number, ok := msg.GetFields()[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number: %w", name, ErrMalformedMessage)
	}
	value := number.NumberValue
	if value != math.Trunc(value) || math.Abs(value) > math.MaxInt32 {
		return 0, fmt.Errorf("field %q is not an integer: %w", name, ErrMalformedMessage)
	}
	return int(value), nil
}

func bigField(msg *structpb.Struct, name string) (*big.Int, error) {
	str, ok := msg.GetFields()[name].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("field %q is not a string: %w", name, ErrMalformedMessage)
	}
	value, ok := new(big.Int).SetString(str.StringValue, 10)
	if !ok {
		return nil, fmt.Errorf("field %q is not a decimal integer: %w", name, ErrMalformedMessage)
	}
	return value, nil
}
