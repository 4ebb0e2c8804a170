package primegen

// TrialDivisionPrime reports exactly whether n is prime. It is the verifier for
// values small enough that dividing by every 6k±1 candidate up to sqrt(n) is
// cheap, and the reference the probabilistic tester is checked against.
func TrialDivisionPrime(n uint64) bool {
	l := Logger.V(2).WithValues("n", n)
	l.Info("TrialDivisionPrime: enter")
	var result bool
	switch {
	case n < 2:
		result = false
	case n < 4:
		result = true
	case n%2 == 0, n%3 == 0:
		result = false
	default:
		result = true
		// Every prime above 3 is 6k-1 or 6k+1.
		for i := uint64(5); i <= n/i; i += 6 {
			if n%i == 0 || n%(i+2) == 0 {
				result = false
				break
			}
		}
	}
	l.Info("TrialDivisionPrime: exit", "result", result)
	return result
}
