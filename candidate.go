package primegen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// The smallest byte length used when drawing a Miller-Rabin witness.
const minWitnessBytes = 4

// Sampler draws random integers from an io.Reader. The reader must be safe for
// concurrent use if the Sampler is shared between goroutines; crypto/rand.Reader
// satisfies this.
type Sampler struct {
	reader io.Reader
}

// Create a new Sampler that reads from r, or from crypto/rand.Reader if r is nil.
func NewSampler(r io.Reader) *Sampler {
	if r == nil {
		r = rand.Reader
	}
	return &Sampler{reader: r}
}

func (s *Sampler) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d random bytes: %w: %v", n, ErrEntropy, err)
	}
	return buf, nil
}

// Candidate returns a uniformly random integer built from byteLength random bytes.
// The bytes are an unsigned big-endian magnitude so the result is never negative;
// the numeric bit length may be smaller than 8*byteLength when leading bits are zero.
func (s *Sampler) Candidate(byteLength int) (*big.Int, error) {
	buf, err := s.read(byteLength)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// Witness returns a random base a with 2 < a < n-1 for a Miller-Rabin round
// against n, which must be greater than 4. Each draw uses a random byte length
// between 4 and byteLength inclusive and is reduced modulo n; draws outside the
// range are discarded and redrawn.
func (s *Sampler) Witness(n *big.Int, byteLength int) (*big.Int, error) {
	if byteLength < minWitnessBytes {
		byteLength = minWitnessBytes
	}
	upper := new(big.Int).Sub(n, one)
	a := new(big.Int)
	for {
		size, err := s.witnessSize(byteLength)
		if err != nil {
			return nil, err
		}
		buf, err := s.read(size)
		if err != nil {
			return nil, err
		}
		a.SetBytes(buf).Mod(a, n)
		if a.Cmp(two) > 0 && a.Cmp(upper) < 0 {
			return a, nil
		}
	}
}

// Pick a byte length in [minWitnessBytes, byteLength].
func (s *Sampler) witnessSize(byteLength int) (int, error) {
	span := byteLength - minWitnessBytes + 1
	if span == 1 {
		return minWitnessBytes, nil
	}
	buf, err := s.read(4)
	if err != nil {
		return 0, err
	}
	return minWitnessBytes + int(binary.BigEndian.Uint32(buf)%uint32(span)), nil
}
