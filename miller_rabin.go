package primegen

import (
	"math/big"
)

var (
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

// Tester implements the Miller-Rabin probabilistic primality test with a fixed
// number of rounds and a random witness per round.
type Tester struct {
	rounds  int
	sampler *Sampler
}

// Create a new Tester that performs rounds iterations using witnesses drawn from
// sampler. A rounds value less than 1 is replaced with DefaultRounds, and a nil
// sampler with one reading from crypto/rand.
func NewTester(rounds int, sampler *Sampler) *Tester {
	if rounds < 1 {
		rounds = DefaultRounds
	}
	if sampler == nil {
		sampler = NewSampler(nil)
	}
	return &Tester{
		rounds:  rounds,
		sampler: sampler,
	}
}

// Rounds returns the number of witness rounds applied per test.
func (t *Tester) Rounds() int {
	return t.rounds
}

// ProbablyPrime returns false if n is definitely composite and true if n passed
// every round, in which case n is composite with probability at most 4^-rounds.
// A prime is never reported as composite. The byteLength is the width of the
// random buffer n was drawn from and bounds the size of each witness draw. The
// only error is a failure of the random source.
func (t *Tester) ProbablyPrime(n *big.Int, byteLength int) (bool, error) {
	switch {
	case n.Cmp(two) < 0:
		return false, nil
	case n.Cmp(three) <= 0:
		return true, nil
	case n.Bit(0) == 0:
		return false, nil
	}

	// n-1 = 2^r * d with d odd
	nMinusOne := new(big.Int).Sub(n, one)
	d := new(big.Int).Set(nMinusOne)
	r := 0
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		r++
	}

	x := new(big.Int)
	for i := 0; i < t.rounds; i++ {
		a, err := t.sampler.Witness(n, byteLength)
		if err != nil {
			return false, err
		}
		x.Exp(a, d, n)
		if x.Cmp(one) == 0 || x.Cmp(nMinusOne) == 0 {
			continue
		}
		passed := false
		for j := 1; j < r; j++ {
			x.Exp(x, two, n)
			if x.Cmp(nMinusOne) == 0 {
				passed = true
				break
			}
		}
		if !passed {
			return false, nil
		}
	}
	return true, nil
}
