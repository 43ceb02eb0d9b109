package types

import (
	"errors"
	"math"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		op      func() (Amount, error)
		want    Amount
		wantErr error
	}{
		{"Add", func() (Amount, error) { return Amount(100).Add(200) }, 300, nil},
		{"Add overflow", func() (Amount, error) { return Amount(math.MaxUint64).Add(1) }, 0, ErrOverflow},
		{"Sub", func() (Amount, error) { return Amount(500).Sub(200) }, 300, nil},
		{"Sub to zero", func() (Amount, error) { return Amount(5).Sub(5) }, 0, nil},
		{"Sub underflow", func() (Amount, error) { return Amount(5).Sub(6) }, 0, ErrUnderflow},
		{"Sum", func() (Amount, error) { return Sum(1, 2, 3) }, 6, nil},
		{"Sum overflow", func() (Amount, error) { return Sum(math.MaxUint64, 1) }, 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountMulBps(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
		bps    uint32
		want   Amount
	}{
		{"5% of 100", 100, 500, 5},
		{"10% of 100", 100, 1000, 10},
		{"zero bps", 100, 0, 0},
		{"floors", 99, 500, 4},
		{"full", 1234, 10000, 1234},
		{"clamped", 1234, 20000, 1234},
		{"no overflow at max", math.MaxUint64, 1000, math.MaxUint64 / 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.amount.MulBps(tt.bps); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	if !ZeroAddress.IsZero() || !Address("  ").IsZero() {
		t.Error("expected blank addresses to be zero")
	}
	if Address("alice").IsZero() {
		t.Error("expected alice to be non-zero")
	}
	if !EscrowAccount.IsEngine() || !ReserveAccount.IsEngine() || Address("alice").IsEngine() {
		t.Error("engine account detection mismatch")
	}
}
