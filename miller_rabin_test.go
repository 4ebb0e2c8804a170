package primegen

import (
	"math/big"
	"testing"
)

func mersenne(p uint) *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), p)
	return n.Sub(n, big.NewInt(1))
}

func parseInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("failed to parse %q", s)
	}
	return n
}

func byteLengthOf(n *big.Int) int {
	return max(minWitnessBytes, (n.BitLen()+7)/8)
}

func TestProbablyPrime_Primes(t *testing.T) {
	tester := NewTester(DefaultRounds, nil)
	tests := []struct {
		name  string
		value *big.Int
	}{
		{name: "2", value: big.NewInt(2)},
		{name: "3", value: big.NewInt(3)},
		{name: "5", value: big.NewInt(5)},
		{name: "7", value: big.NewInt(7)},
		{name: "65521", value: big.NewInt(65521)},
		{name: "M31", value: mersenne(31)},
		{name: "4294967291", value: big.NewInt(4294967291)},
		{name: "M61", value: mersenne(61)},
		{name: "18446744073709551557", value: parseInt(t, "18446744073709551557")},
		{name: "M89", value: mersenne(89)},
		{name: "M127", value: mersenne(127)},
		{name: "M521", value: mersenne(521)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// A prime must never be rejected, so repeat to give a broken
			// witness choice a chance to show itself.
			for i := 0; i < 20; i++ {
				actual, err := tester.ProbablyPrime(test.value, byteLengthOf(test.value))
				if err != nil {
					t.Fatalf("ProbablyPrime returned an error: %v", err)
				}
				if !actual {
					t.Fatalf("Prime %s reported as composite", test.value)
				}
			}
		})
	}
}

func TestProbablyPrime_Composites(t *testing.T) {
	tester := NewTester(DefaultRounds, nil)
	tests := []struct {
		name  string
		value *big.Int
	}{
		{name: "negative", value: big.NewInt(-7)},
		{name: "0", value: big.NewInt(0)},
		{name: "1", value: big.NewInt(1)},
		{name: "4", value: big.NewInt(4)},
		{name: "9", value: big.NewInt(9)},
		{name: "25", value: big.NewInt(25)},
		{name: "2047", value: big.NewInt(2047)},
		{name: "F5", value: big.NewInt(4294967297)},
		{name: "3215031751", value: big.NewInt(3215031751)},
		{name: "M31*M61", value: new(big.Int).Mul(mersenne(31), mersenne(61))},
		{name: "M89*M127", value: new(big.Int).Mul(mersenne(89), mersenne(127))},
		{name: "M67", value: mersenne(67)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual, err := tester.ProbablyPrime(test.value, byteLengthOf(test.value))
			if err != nil {
				t.Fatalf("ProbablyPrime returned an error: %v", err)
			}
			if actual {
				t.Errorf("Composite %s reported as prime", test.value)
			}
		})
	}
}

func TestProbablyPrime_Carmichael(t *testing.T) {
	tester := NewTester(DefaultRounds, nil)
	carmichael := []int64{561, 1105, 1729, 2465, 2821, 6601, 8911, 10585, 15841, 29341, 41041, 62745, 63973, 75361, 101101, 126217, 172081, 188461, 252601, 278545, 294409, 314821, 334153, 340561, 399001, 410041, 449065, 488881, 512461}
	for _, value := range carmichael {
		n := big.NewInt(value)
		actual, err := tester.ProbablyPrime(n, byteLengthOf(n))
		if err != nil {
			t.Fatalf("ProbablyPrime returned an error: %v", err)
		}
		if actual {
			t.Errorf("Carmichael number %d reported as prime", value)
		}
	}
}

// A single round must still catch 561 far more often than the 1/4 bound.
func TestProbablyPrime_SingleRoundBound(t *testing.T) {
	tester := NewTester(1, nil)
	n := big.NewInt(561)
	trials := 2000
	passed := 0
	for i := 0; i < trials; i++ {
		actual, err := tester.ProbablyPrime(n, minWitnessBytes)
		if err != nil {
			t.Fatalf("ProbablyPrime returned an error: %v", err)
		}
		if actual {
			passed++
		}
	}
	if rate := float64(passed) / float64(trials); rate > 0.30 {
		t.Errorf("561 passed a single round %d of %d times", passed, trials)
	}
}

func TestNewTester_Defaults(t *testing.T) {
	if rounds := NewTester(0, nil).Rounds(); rounds != DefaultRounds {
		t.Errorf("Expected %d rounds, got %d", DefaultRounds, rounds)
	}
	if rounds := NewTester(3, nil).Rounds(); rounds != 3 {
		t.Errorf("Expected 3 rounds, got %d", rounds)
	}
}

func BenchmarkProbablyPrime_M521(b *testing.B) {
	tester := NewTester(DefaultRounds, nil)
	n := mersenne(521)
	for i := 0; i < b.N; i++ {
		_, _ = tester.ProbablyPrime(n, 66)
	}
}
