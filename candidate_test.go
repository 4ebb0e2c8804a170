package primegen

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"testing/iotest"
)

const (
	TEST_WITNESS_DRAWS = 1000
)

func TestSamplerCandidate_Unsigned(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "all-bits", input: []byte{0xff, 0xff, 0xff, 0xff}, expected: "4294967295"},
		{name: "high-bit", input: []byte{0x80, 0x00, 0x00, 0x01}, expected: "2147483649"},
		{name: "leading-zero", input: []byte{0x00, 0x00, 0x01, 0x01}, expected: "257"},
		{name: "zero", input: []byte{0x00, 0x00, 0x00, 0x00}, expected: "0"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sampler := NewSampler(bytes.NewReader(test.input))
			actual, err := sampler.Candidate(len(test.input))
			if err != nil {
				t.Fatalf("Candidate returned an error: %v", err)
			}
			if actual.Sign() < 0 {
				t.Errorf("Candidate is negative: %s", actual)
			}
			if actual.String() != test.expected {
				t.Errorf("Expected %s got %s", test.expected, actual)
			}
		})
	}
}

func TestSamplerCandidate_Width(t *testing.T) {
	sampler := NewSampler(nil)
	for _, byteLength := range []int{4, 8, 32, 128} {
		for i := 0; i < 100; i++ {
			actual, err := sampler.Candidate(byteLength)
			if err != nil {
				t.Fatalf("Candidate returned an error: %v", err)
			}
			if actual.Sign() < 0 || actual.BitLen() > 8*byteLength {
				t.Errorf("byteLength %d: candidate %s out of range", byteLength, actual)
			}
		}
	}
}

func TestSamplerCandidate_ShortRead(t *testing.T) {
	sampler := NewSampler(bytes.NewReader([]byte{0x01, 0x02}))
	if _, err := sampler.Candidate(4); !errors.Is(err, ErrEntropy) {
		t.Errorf("Expected ErrEntropy, got %v", err)
	}
}

func TestSamplerCandidate_ReaderError(t *testing.T) {
	sampler := NewSampler(iotest.ErrReader(errors.New("no entropy")))
	if _, err := sampler.Candidate(4); !errors.Is(err, ErrEntropy) {
		t.Errorf("Expected ErrEntropy, got %v", err)
	}
}

func TestSamplerWitness_Range(t *testing.T) {
	sampler := NewSampler(nil)
	tests := []struct {
		n          *big.Int
		byteLength int
	}{
		{n: big.NewInt(7), byteLength: 4},
		{n: big.NewInt(1000003), byteLength: 4},
		{n: big.NewInt(4294967291), byteLength: 4},
		{n: new(big.Int).Lsh(big.NewInt(1), 255), byteLength: 32},
	}
	for _, test := range tests {
		t.Run(test.n.String(), func(t *testing.T) {
			upper := new(big.Int).Sub(test.n, big.NewInt(1))
			for i := 0; i < TEST_WITNESS_DRAWS; i++ {
				a, err := sampler.Witness(test.n, test.byteLength)
				if err != nil {
					t.Fatalf("Witness returned an error: %v", err)
				}
				if a.Cmp(big.NewInt(2)) <= 0 || a.Cmp(upper) >= 0 {
					t.Fatalf("Witness %s is outside (2, %s)", a, upper)
				}
			}
		})
	}
}

func TestSamplerWitness_OnlyChoice(t *testing.T) {
	sampler := NewSampler(nil)
	a, err := sampler.Witness(big.NewInt(5), 4)
	if err != nil {
		t.Fatalf("Witness returned an error: %v", err)
	}
	if a.Int64() != 3 {
		t.Errorf("Expected witness 3 for n=5, got %s", a)
	}
}

func TestSamplerWitnessSize(t *testing.T) {
	sampler := NewSampler(nil)
	for _, byteLength := range []int{4, 5, 16, 64} {
		seen := map[int]bool{}
		for i := 0; i < TEST_WITNESS_DRAWS; i++ {
			size, err := sampler.witnessSize(byteLength)
			if err != nil {
				t.Fatalf("witnessSize returned an error: %v", err)
			}
			if size < minWitnessBytes || size > byteLength {
				t.Fatalf("byteLength %d: size %d out of range", byteLength, size)
			}
			seen[size] = true
		}
		if byteLength <= 16 && len(seen) != byteLength-minWitnessBytes+1 {
			t.Errorf("byteLength %d: expected every size to be drawn, saw %d", byteLength, len(seen))
		}
	}
}
