package primegen

import (
	"math/big"
	"testing"
)

func TestQuickAccept(t *testing.T) {
	tests := []struct {
		value    int64
		expected bool
	}{
		{value: -7, expected: false},
		{value: -1, expected: false},
		{value: 0, expected: false},
		{value: 1, expected: true},
		{value: 2, expected: false},
		{value: 3, expected: false},
		{value: 5, expected: true},
		{value: 9, expected: false},
		{value: 25, expected: true},
		{value: 1000000, expected: false},
		{value: 2147483647, expected: true},
		{value: 4294967295, expected: false},
	}
	for _, test := range tests {
		if actual := QuickAccept(big.NewInt(test.value)); actual != test.expected {
			t.Errorf("QuickAccept(%d): expected %t got %t", test.value, test.expected, actual)
		}
	}
}

// Values accepted by the filter must never be even or divisible by three.
func TestQuickAccept_Exhaustive(t *testing.T) {
	for i := int64(-100); i < 10000; i++ {
		accepted := QuickAccept(big.NewInt(i))
		expected := i > 0 && i%2 != 0 && i%3 != 0
		if accepted != expected {
			t.Errorf("QuickAccept(%d): expected %t got %t", i, expected, accepted)
		}
	}
}
