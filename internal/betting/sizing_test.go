package betting

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSizeEndpoints(t *testing.T) {
	minBet := decimal.NewFromInt(1)
	maxBet := decimal.NewFromInt(5)

	if got := Size(0, minBet, maxBet); !got.Equal(minBet) {
		t.Errorf("Size(0) = %s, want %s", got, minBet)
	}
	if got := Size(100, minBet, maxBet); !got.Equal(maxBet) {
		t.Errorf("Size(100) = %s, want %s", got, maxBet)
	}
}

func TestSizeKnownScenario(t *testing.T) {
	// confidence 70, minBet 1, maxBet 5 → 1 + 70*4/100 = 3.8
	got := Size(70, decimal.NewFromInt(1), decimal.NewFromInt(5))
	if !got.Equal(decimal.RequireFromString("3.8")) {
		t.Errorf("Size(70,1,5) = %s, want 3.8", got)
	}
}

func TestSizeBoundedAndMonotonic(t *testing.T) {
	minBet := decimal.NewFromInt(1)
	maxBet := decimal.NewFromInt(5)

	prev := Size(0, minBet, maxBet)
	for c := 0; c <= 100; c++ {
		got := Size(c, minBet, maxBet)
		if got.LessThan(minBet) || got.GreaterThan(maxBet) {
			t.Fatalf("Size(%d) = %s escapes [%s,%s]", c, got, minBet, maxBet)
		}
		if got.LessThan(prev) {
			t.Fatalf("Size(%d) = %s decreased from %s", c, got, prev)
		}
		prev = got
	}
}

func TestSizeEqualBounds(t *testing.T) {
	flat := decimal.NewFromInt(2)
	for _, c := range []int{0, 50, 100} {
		if got := Size(c, flat, flat); !got.Equal(flat) {
			t.Errorf("Size(%d) with equal bounds = %s, want %s", c, got, flat)
		}
	}
}
