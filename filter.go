package primegen

import (
	"math/big"
)

// QuickAccept applies the cheap, deterministic screening rules to a candidate and
// returns true only if n is strictly positive, odd, and not a multiple of three.
// Rejected candidates are never passed to the Miller-Rabin test.
func QuickAccept(n *big.Int) bool {
	if n.Sign() <= 0 {
		return false
	}
	if n.Bit(0) == 0 {
		return false
	}
	var rem big.Int
	return rem.Mod(n, three).Sign() != 0
}
