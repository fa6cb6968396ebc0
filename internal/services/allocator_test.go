package services

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
)

func TestAllocate(t *testing.T) {
	t.Run("reference partition", func(t *testing.T) {
		p, err := Allocate(60, []uint64{5, 10, 15, 20})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		want := []models.Slice{
			{PrizeIndex: 0, Start: 0, End: 12},
			{PrizeIndex: 1, Start: 12, End: 18},
			{PrizeIndex: 2, Start: 18, End: 22},
			{PrizeIndex: 3, Start: 22, End: 25},
		}
		if len(p.Slices) != len(want) {
			t.Fatalf("Expected %d slices, got %d", len(want), len(p.Slices))
		}
		for i := range want {
			if p.Slices[i] != want[i] {
				t.Errorf("slice %d: expected %+v, got %+v", i, want[i], p.Slices[i])
			}
		}
		if p.Allocated() != 25 {
			t.Errorf("Expected 25 allocated slots, got %d", p.Allocated())
		}
	})

	t.Run("whole space", func(t *testing.T) {
		p, err := Allocate(60, []uint64{2, 2})
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if p.Allocated() != 60 {
			t.Errorf("Expected the full space to be allocated, got %d", p.Allocated())
		}
	})

	t.Run("over-subscribed", func(t *testing.T) {
		_, err := Allocate(60, []uint64{2, 2, 60})
		if !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Fatalf("Expected InvalidConfiguration, got %v", err)
		}
		if errs.FieldOf(err) != "prizes" {
			t.Errorf("Expected field prizes, got %q", errs.FieldOf(err))
		}
	})

	t.Run("non-dividing denominator", func(t *testing.T) {
		_, err := Allocate(60, []uint64{5, 7})
		if !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Fatalf("Expected InvalidConfiguration, got %v", err)
		}
		if errs.FieldOf(err) != "prizes[1].probDenominator" {
			t.Errorf("Expected the second denominator to be named, got %q", errs.FieldOf(err))
		}
	})

	t.Run("zero denominator", func(t *testing.T) {
		if _, err := Allocate(60, []uint64{0}); !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Fatalf("Expected InvalidConfiguration, got %v", err)
		}
	})

	t.Run("zero space", func(t *testing.T) {
		if _, err := Allocate(0, []uint64{1}); !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Fatalf("Expected InvalidConfiguration, got %v", err)
		}
	})
}

func TestAllocateProperties(t *testing.T) {
	divisors := []uint64{1, 2, 3, 4, 5, 6, 10, 12, 15, 20, 30, 60}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(6)
		denoms := make([]uint64, n)
		var need uint64
		for i := range denoms {
			denoms[i] = divisors[rng.Intn(len(divisors))]
			need += 60 / denoms[i]
		}

		p, err := Allocate(60, denoms)
		if need > 60 {
			if !errors.Is(err, errs.ErrInvalidConfiguration) {
				t.Fatalf("%v: expected over-subscription error, got %v", denoms, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: unexpected error %v", denoms, err)
		}

		var next uint64
		for i, s := range p.Slices {
			if s.Start != next {
				t.Fatalf("%v: slice %d starts at %d, expected %d", denoms, i, s.Start, next)
			}
			if s.End-s.Start != 60/denoms[i] {
				t.Fatalf("%v: slice %d has %d slots, expected %d", denoms, i, s.End-s.Start, 60/denoms[i])
			}
			next = s.End
		}
		if p.Allocated() > p.Space {
			t.Fatalf("%v: allocated %d of %d", denoms, p.Allocated(), p.Space)
		}
	}
}

func TestLookup(t *testing.T) {
	p, err := Allocate(60, []uint64{5, 10, 15, 20})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	cases := map[uint64]int{
		0:  0,
		11: 0,
		12: 1,
		17: 1,
		18: 2,
		21: 2,
		22: 3,
		24: 3,
		25: models.NoPrize,
		59: models.NoPrize,
		60: models.NoPrize,
	}
	for slot, want := range cases {
		if got := Lookup(p, slot); got != want {
			t.Errorf("slot %d: expected prize %d, got %d", slot, want, got)
		}
	}
}
