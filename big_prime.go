package primegen

import (
	"fmt"
	"math/big"
)

const (
	// Values with at most this many bits are verified exactly by trial division.
	TrialDivisionBitLimit = 48

	MethodTrialDivision = "trial-division"
	MethodMillerRabin   = "miller-rabin"
)

// Verdict describes the outcome of verifying a single value.
type Verdict struct {
	// True if the value is prime (exact) or probably prime (probabilistic).
	Prime bool
	// The method used to reach the verdict.
	Method string
}

// Verify determines if n is prime. Small values are checked exactly with trial
// division; larger values must pass both this package's Miller-Rabin test and
// math/big's Baillie-PSW backed ProbablyPrime.
func Verify(n *big.Int) (Verdict, error) {
	l := Logger.V(1).WithValues("bits", n.BitLen())
	l.Info("Verify: enter")
	if n.Sign() <= 0 {
		l.Info("Verify: exit", "prime", false)
		return Verdict{Prime: false, Method: MethodTrialDivision}, nil
	}
	if n.BitLen() <= TrialDivisionBitLimit {
		verdict := Verdict{
			Prime:  TrialDivisionPrime(n.Uint64()),
			Method: MethodTrialDivision,
		}
		l.Info("Verify: exit", "prime", verdict.Prime, "method", verdict.Method)
		return verdict, nil
	}
	byteLength := (n.BitLen() + 7) / 8
	prime, err := NewTester(DefaultRounds, nil).ProbablyPrime(n, byteLength)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to verify value: %w", err)
	}
	verdict := Verdict{
		Prime:  prime && n.ProbablyPrime(DefaultRounds),
		Method: MethodMillerRabin,
	}
	l.Info("Verify: exit", "prime", verdict.Prime, "method", verdict.Method)
	return verdict, nil
}
