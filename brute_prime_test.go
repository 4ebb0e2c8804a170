package primegen

import (
	"fmt"
	"sort"
	"testing"
)

// Every prime below primeVerifyLimit.
var verificationPrimes = []uint64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71,
	73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131, 137, 139, 149, 151,
	157, 163, 167, 173, 179, 181, 191, 193, 197, 199, 211, 223, 227, 229, 233,
	239, 241, 251, 257, 263, 269, 271, 277, 281, 283, 293, 307, 311, 313, 317,
	331, 337, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401, 409, 419,
	421, 431, 433, 439, 443, 449, 457, 461, 463, 467, 479, 487, 491, 499,
}

const primeVerifyLimit = 500

// Verify that trial division classifies every integer in [0, primeVerifyLimit)
// the same way as the reference table.
func TestTrialDivisionPrime(t *testing.T) {
	for i := uint64(0); i < primeVerifyLimit; i++ {
		idx := sort.Search(len(verificationPrimes), func(idx int) bool { return verificationPrimes[idx] >= i })
		expected := idx < len(verificationPrimes) && verificationPrimes[idx] == i
		t.Run(fmt.Sprintf("n=%d", i), func(t *testing.T) {
			if actual := TrialDivisionPrime(i); actual != expected {
				t.Errorf("Checking %d: expected %t got %t", i, expected, actual)
			}
		})
	}
}

func TestTrialDivisionPrime_Large(t *testing.T) {
	tests := []struct {
		n        uint64
		expected bool
	}{
		{n: 2147483647, expected: true},
		{n: 4294967291, expected: true},
		{n: 4294967297, expected: false},
		{n: 281474976710597, expected: true},
		{n: 281474976710655, expected: false},
		{n: 4294967291 * 65521, expected: false},
	}
	for _, test := range tests {
		if actual := TrialDivisionPrime(test.n); actual != test.expected {
			t.Errorf("Checking %d: expected %t got %t", test.n, test.expected, actual)
		}
	}
}

// Cross-check against a sieve of Eratosthenes, including the squares and
// products of 6k±1 divisors that the stepped loop must not skip.
func TestTrialDivisionPrime_Sieve(t *testing.T) {
	const limit = 20000
	composite := make([]bool, limit)
	for i := 2; i*i < limit; i++ {
		if composite[i] {
			continue
		}
		for j := i * i; j < limit; j += i {
			composite[j] = true
		}
	}
	for i := 2; i < limit; i++ {
		if actual := TrialDivisionPrime(uint64(i)); actual == composite[i] {
			t.Errorf("Checking %d: expected %t got %t", i, !composite[i], actual)
		}
	}
	for _, n := range []uint64{25, 35, 49, 77, 121, 143, 169, 187, 5 * 7 * 11 * 13, 65521 * 65521, 65519 * 65521} {
		if TrialDivisionPrime(n) {
			t.Errorf("Checking %d: expected composite", n)
		}
	}
}

func BenchmarkTrialDivisionPrime(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = TrialDivisionPrime(4294967291)
	}
}
