// Package primegen generates large probable primes of a requested bit length by
// searching random candidates concurrently. Candidates are drawn from a
// cryptographically secure source, screened with cheap divisibility rules, and
// confirmed with the Miller-Rabin probabilistic test.
package primegen

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

const (
	// The smallest bit length accepted by the generator.
	MinBitLength = 32
	// The number of Miller-Rabin rounds applied to every candidate. A composite
	// survives all rounds with probability no greater than 4^-DefaultRounds.
	DefaultRounds = 10
	// The default number of concurrent search workers.
	DefaultConcurrency = 5
)

var (
	// Logger used by package level functions; default is a no-op logger.
	Logger = logr.Discard()

	// The requested bit length is not a multiple of 8 or is smaller than MinBitLength.
	ErrInvalidBitLength = fmt.Errorf("bit length must be a multiple of 8 and at least %d", MinBitLength)
	// The requested count of primes is less than 1.
	ErrInvalidCount = errors.New("count must be at least 1")
	// The random source failed to supply the requested bytes.
	ErrEntropy = errors.New("random source failed")
	// A search unit exhausted its configured attempt budget.
	ErrMaxAttempts = errors.New("maximum candidate attempts exceeded")
	// The generator was configured with fewer than one worker.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
)

// ValidateRequest returns an error if the bit length and count do not describe a
// valid generation request.
func ValidateRequest(bitLength, count int) error {
	if bitLength < MinBitLength || bitLength%8 != 0 {
		return fmt.Errorf("invalid bit length %d: %w", bitLength, ErrInvalidBitLength)
	}
	if count < 1 {
		return fmt.Errorf("invalid count %d: %w", count, ErrInvalidCount)
	}
	return nil
}
