package primegen

import (
	"errors"
	"math/big"
	"testing"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		name           string
		value          *big.Int
		expectedPrime  bool
		expectedMethod string
	}{
		{name: "negative", value: big.NewInt(-3), expectedPrime: false, expectedMethod: MethodTrialDivision},
		{name: "zero", value: big.NewInt(0), expectedPrime: false, expectedMethod: MethodTrialDivision},
		{name: "2", value: big.NewInt(2), expectedPrime: true, expectedMethod: MethodTrialDivision},
		{name: "M31", value: mersenne(31), expectedPrime: true, expectedMethod: MethodTrialDivision},
		{name: "F5", value: big.NewInt(4294967297), expectedPrime: false, expectedMethod: MethodTrialDivision},
		{name: "M61", value: mersenne(61), expectedPrime: true, expectedMethod: MethodMillerRabin},
		{name: "M67", value: mersenne(67), expectedPrime: false, expectedMethod: MethodMillerRabin},
		{name: "M127", value: mersenne(127), expectedPrime: true, expectedMethod: MethodMillerRabin},
		{name: "M89*M127", value: new(big.Int).Mul(mersenne(89), mersenne(127)), expectedPrime: false, expectedMethod: MethodMillerRabin},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			verdict, err := Verify(test.value)
			if err != nil {
				t.Fatalf("Verify returned an error: %v", err)
			}
			if verdict.Prime != test.expectedPrime {
				t.Errorf("Expected prime %t got %t", test.expectedPrime, verdict.Prime)
			}
			if verdict.Method != test.expectedMethod {
				t.Errorf("Expected method %s got %s", test.expectedMethod, verdict.Method)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name      string
		bitLength int
		count     int
		expected  error
	}{
		{name: "minimum", bitLength: 32, count: 1},
		{name: "large", bitLength: 4096, count: 100},
		{name: "too-short", bitLength: 24, count: 1, expected: ErrInvalidBitLength},
		{name: "not-byte-multiple", bitLength: 33, count: 1, expected: ErrInvalidBitLength},
		{name: "zero-bits", bitLength: 0, count: 1, expected: ErrInvalidBitLength},
		{name: "zero-count", bitLength: 64, count: 0, expected: ErrInvalidCount},
		{name: "negative-count", bitLength: 64, count: -1, expected: ErrInvalidCount},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateRequest(test.bitLength, test.count)
			switch {
			case test.expected == nil && err != nil:
				t.Errorf("Expected no error, got %v", err)
			case test.expected != nil && !errors.Is(err, test.expected):
				t.Errorf("Expected %v, got %v", test.expected, err)
			}
		})
	}
}
