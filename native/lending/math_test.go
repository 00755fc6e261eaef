package lending

import (
	"math/big"
	"testing"
)

func TestRoundToAccuracyHalfUp(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		unit  uint64
		want  int64
	}{
		{"exact multiple untouched", 120_000, 10_000, 120_000},
		{"below half rounds down", 124_999, 10_000, 120_000},
		{"exact half rounds up", 125_000, 10_000, 130_000},
		{"above half rounds up", 125_001, 10_000, 130_000},
		{"zero stays zero", 0, 10_000, 0},
		{"small residue below half", 4_999, 10_000, 0},
		{"small residue at half", 5_000, 10_000, 10_000},
		{"unit one passes through", 123, 1, 123},
		{"unit zero passes through", 123, 0, 123},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RoundToAccuracy(big.NewInt(tc.value), tc.unit)
			if got.Int64() != tc.want {
				t.Fatalf("unexpected rounding: got %d want %d", got.Int64(), tc.want)
			}
		})
	}
}

func TestRoundToAccuracyDoesNotMutateInput(t *testing.T) {
	value := big.NewInt(125_000)
	RoundToAccuracy(value, 10_000)
	if value.Int64() != 125_000 {
		t.Fatalf("input mutated: %d", value.Int64())
	}
}

func TestRoundToAccuracyNil(t *testing.T) {
	if got := RoundToAccuracy(nil, 10_000); got.Sign() != 0 {
		t.Fatalf("nil value should round to zero, got %s", got)
	}
}

func TestIsAligned(t *testing.T) {
	cases := []struct {
		name  string
		value *big.Int
		unit  uint64
		want  bool
	}{
		{"nil counts as zero", nil, 10_000, true},
		{"zero aligned", big.NewInt(0), 10_000, true},
		{"multiple aligned", big.NewInt(30_000), 10_000, true},
		{"residue misaligned", big.NewInt(30_001), 10_000, false},
		{"unit one always aligned", big.NewInt(7), 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAligned(tc.value, tc.unit); got != tc.want {
				t.Fatalf("unexpected alignment: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestPeriodIndex(t *testing.T) {
	const day = 86_400
	cases := []struct {
		name  string
		start uint64
		at    uint64
		want  uint64
	}{
		{"before start", 1_000_000, 999_999, 0},
		{"at start", 1_000_000, 1_000_000, 0},
		{"inside first period", 1_000_000, 1_000_000 + day - 1, 0},
		{"first boundary", 1_000_000, 1_000_000 + day, 1},
		{"mid second period", 1_000_000, 1_000_000 + day + day/2, 1},
		{"thirty periods", 1_000_000, 1_000_000 + 30*day, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PeriodIndex(tc.start, tc.at, day); got != tc.want {
				t.Fatalf("unexpected period index: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestAddressHexRoundTrip(t *testing.T) {
	var addr Address
	for i := range addr {
		addr[i] = byte(i + 1)
	}
	parsed, err := AddressFromHex(addr.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Fatalf("round trip mismatch: got %s want %s", parsed, addr)
	}
	if _, err := AddressFromHex("0x1234"); err == nil {
		t.Fatalf("expected error for short address")
	}
	if _, err := AddressFromHex("zz"); err == nil {
		t.Fatalf("expected error for non-hex address")
	}
}
