package exchange

import (
	"strconv"
	"testing"
)

func TestRoundPriceDown(t *testing.T) {
	cases := []struct {
		price   float64
		tickStr string
		want    string
	}{
		{95.99904, "0.1", "95.9"},
		{101.303, "0.1", "101.3"},
	}
	for _, c := range cases {
		got := RoundPriceDown(c.price, c.tickStr)
		if got != c.want {
			t.Errorf("RoundPriceDown(%v, %s) = %s, want %s", c.price, c.tickStr, got, c.want)
		}
	}
}

func TestRoundQtyDown(t *testing.T) {
	got := RoundQtyDown(0.0129, "0.001")
	if got != "0.012" {
		t.Errorf("RoundQtyDown = %s, want 0.012", got)
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	once := RoundPriceDown(95.9, "0.1")
	onceFloat, err := strconv.ParseFloat(once, 64)
	if err != nil {
		t.Fatal(err)
	}
	twice := RoundPriceDown(onceFloat, "0.1")
	if once != twice {
		t.Errorf("format not idempotent: %s vs %s", once, twice)
	}
}
