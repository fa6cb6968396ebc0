package services

import (
	"context"
	"errors"
	"testing"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
)

func TestLotteryRegistry_ReferenceScenario(t *testing.T) {
	svc := newTestService(t, Options{})
	id := startReferenceLottery(t, svc)

	if svc.LotteriesLength() != 1 {
		t.Fatalf("Expected 1 lottery, got %d", svc.LotteriesLength())
	}
	lottery, err := svc.Lottery(id)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if lottery.Name != "reference" || lottery.Status != models.StatusActive {
		t.Errorf("Unexpected lottery %+v", lottery)
	}

	want := []struct {
		slice      uint64
		start, end uint64
	}{
		{12, 0, 12},
		{6, 12, 18},
		{4, 18, 22},
		{3, 22, 25},
	}
	var next uint64
	for i, w := range want {
		prize, err := svc.LotteryPrizeInfo(id, i)
		if err != nil {
			t.Fatalf("prize %d: %v", i, err)
		}
		if prize.Amount != uint64(i+1) || prize.Remaining != uint64(i+1) {
			t.Errorf("prize %d: expected amount %d, got %d/%d", i, i+1, prize.Amount, prize.Remaining)
		}
		if prize.ProbDenominator != uint64((i+1)*5) {
			t.Errorf("prize %d: expected denominator %d, got %d", i, (i+1)*5, prize.ProbDenominator)
		}
		if prize.SliceSize != w.slice || prize.SlotRange.Start != w.start || prize.SlotRange.End != w.end {
			t.Errorf("prize %d: expected slice %d [%d,%d), got %d [%d,%d)", i, w.slice, w.start, w.end,
				prize.SliceSize, prize.SlotRange.Start, prize.SlotRange.End)
		}
		if prize.SlotRange.Len() != 60/prize.ProbDenominator {
			t.Errorf("prize %d: slot range length %d", i, prize.SlotRange.Len())
		}
		if prize.SlotRange.Start != next {
			t.Fatalf("prize %d: expected range to start at %d, got %d", i, next, prize.SlotRange.Start)
		}
		next = prize.SlotRange.End
	}

	first, _ := svc.LotteryPrizeInfo(id, 0)
	if first.SlotRange.Start != 0 || first.SlotRange.End-1 != 11 {
		t.Errorf("Expected prize 0 to own slots 0..11, got %+v", first.SlotRange)
	}
	last, _ := svc.LotteryPrizeInfo(id, 3)
	if last.Amount != 4 || last.ProbDenominator != 20 || last.SlotRange.Start != 22 || last.SlotRange.End-1 != 24 {
		t.Errorf("Expected prize 3 to be amount 4, 1 in 20, slots 22..24, got %+v", last)
	}

	p, err := svc.Partition(id)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if p.Allocated() != 25 || p.Space != 60 {
		t.Errorf("Expected 25 of 60 slots allocated, got %d of %d", p.Allocated(), p.Space)
	}
}

func TestLotteryRegistry_Permissions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{})
	id, err := svc.CreateLottery(ctx, owner, "gated")
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if err := svc.AddLotteryPrize(ctx, owner, id, "tv", 1, 5); err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}

	t.Run("create", func(t *testing.T) {
		if _, err := svc.CreateLottery(ctx, stranger, "nope"); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Fatalf("Expected PermissionDenied, got %v", err)
		}
		if svc.LotteriesLength() != 1 {
			t.Errorf("Expected 1 lottery, got %d", svc.LotteriesLength())
		}
	})

	t.Run("add prize", func(t *testing.T) {
		if err := svc.AddLotteryPrize(ctx, stranger, id, "car", 1, 2); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Fatalf("Expected PermissionDenied, got %v", err)
		}
		l, _ := svc.Lottery(id)
		if len(l.Prizes) != 1 {
			t.Errorf("Expected 1 prize, got %d", len(l.Prizes))
		}
	})

	t.Run("start", func(t *testing.T) {
		if err := svc.StartLottery(ctx, stranger, id); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Fatalf("Expected PermissionDenied, got %v", err)
		}
		l, _ := svc.Lottery(id)
		if l.Status != models.StatusCreated {
			t.Errorf("Expected status created, got %s", l.Status)
		}
	})

	t.Run("auditor cannot mutate", func(t *testing.T) {
		if err := svc.GrantRole(ctx, owner, auditor, models.RoleAuditor); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if _, err := svc.CreateLottery(ctx, auditor, "nope"); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Fatalf("Expected PermissionDenied, got %v", err)
		}
		if err := svc.CloseLottery(ctx, auditor, id); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Fatalf("Expected PermissionDenied, got %v", err)
		}
	})
}

func TestLotteryRegistry_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{})
	id, _ := svc.CreateLottery(ctx, owner, "validated")

	cases := []struct {
		name   string
		prize  string
		amount int64
		denom  int64
		field  string
	}{
		{"zero amount", "a", 0, 5, "amount"},
		{"negative amount", "a", -1, 5, "amount"},
		{"zero denominator", "a", 1, 0, "probDenominator"},
		{"negative denominator", "a", 1, -3, "probDenominator"},
		{"non-dividing denominator", "a", 1, 7, "probDenominator"},
		{"denominator above space", "a", 1, 120, "probDenominator"},
		{"empty name", " ", 1, 5, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.AddLotteryPrize(ctx, owner, id, tc.prize, tc.amount, tc.denom)
			if !errors.Is(err, errs.ErrInvalidConfiguration) {
				t.Fatalf("Expected InvalidConfiguration, got %v", err)
			}
			if errs.FieldOf(err) != tc.field {
				t.Errorf("Expected field %q, got %q", tc.field, errs.FieldOf(err))
			}
		})
	}

	l, _ := svc.Lottery(id)
	if len(l.Prizes) != 0 {
		t.Errorf("Expected no prizes after rejected adds, got %d", len(l.Prizes))
	}

	if _, err := svc.CreateLottery(ctx, owner, ""); !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Errorf("Expected InvalidConfiguration for an empty name, got %v", err)
	}
}

func TestLotteryRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{})

	t.Run("start without prizes", func(t *testing.T) {
		id, _ := svc.CreateLottery(ctx, owner, "empty")
		if err := svc.StartLottery(ctx, owner, id); !errors.Is(err, errs.ErrInvalidState) {
			t.Fatalf("Expected InvalidState, got %v", err)
		}
		if _, err := svc.Partition(id); !errors.Is(err, errs.ErrInvalidState) {
			t.Errorf("Expected no partition before start, got %v", err)
		}
	})

	t.Run("over-subscribed start", func(t *testing.T) {
		id, _ := svc.CreateLottery(ctx, owner, "greedy")
		_ = svc.AddLotteryPrize(ctx, owner, id, "half", 1, 2)
		_ = svc.AddLotteryPrize(ctx, owner, id, "half again", 1, 2)
		_ = svc.AddLotteryPrize(ctx, owner, id, "one more", 1, 60)
		if err := svc.StartLottery(ctx, owner, id); !errors.Is(err, errs.ErrInvalidConfiguration) {
			t.Fatalf("Expected InvalidConfiguration, got %v", err)
		}
		l, _ := svc.Lottery(id)
		if l.Status != models.StatusCreated {
			t.Errorf("Expected the lottery to stay created, got %s", l.Status)
		}
	})

	t.Run("start twice and add after start", func(t *testing.T) {
		id, _ := svc.CreateLottery(ctx, owner, "twice")
		_ = svc.AddLotteryPrize(ctx, owner, id, "tv", 1, 5)
		if err := svc.StartLottery(ctx, owner, id); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if err := svc.StartLottery(ctx, owner, id); !errors.Is(err, errs.ErrInvalidState) {
			t.Fatalf("Expected InvalidState on second start, got %v", err)
		}
		if err := svc.AddLotteryPrize(ctx, owner, id, "late", 1, 5); !errors.Is(err, errs.ErrInvalidState) {
			t.Fatalf("Expected InvalidState, got %v", err)
		}
		l, _ := svc.Lottery(id)
		if len(l.Prizes) != 1 {
			t.Errorf("Expected 1 prize, got %d", len(l.Prizes))
		}
	})

	t.Run("close", func(t *testing.T) {
		id, _ := svc.CreateLottery(ctx, owner, "closing")
		if err := svc.CloseLottery(ctx, owner, id); err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if err := svc.CloseLottery(ctx, owner, id); !errors.Is(err, errs.ErrInvalidState) {
			t.Fatalf("Expected InvalidState, got %v", err)
		}
		if err := svc.AddLotteryPrize(ctx, owner, id, "tv", 1, 5); !errors.Is(err, errs.ErrInvalidState) {
			t.Fatalf("Expected InvalidState, got %v", err)
		}
	})

	t.Run("unknown ids", func(t *testing.T) {
		if _, err := svc.Lottery(99); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Expected NotFound, got %v", err)
		}
		if err := svc.AddLotteryPrize(ctx, owner, 99, "tv", 1, 5); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Expected NotFound, got %v", err)
		}
		if err := svc.StartLottery(ctx, owner, 99); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Expected NotFound, got %v", err)
		}
		if _, err := svc.LotteryPrizeInfo(0, 5); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Expected NotFound for an unknown prize index, got %v", err)
		}
		if _, err := svc.LotteryPrizeInfo(0, -1); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Expected NotFound for a negative prize index, got %v", err)
		}
	})
}

func TestLotteryRegistry_AddLotteryPrizesIsAtomic(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{})
	id, _ := svc.CreateLottery(ctx, owner, "batch")

	err := svc.AddLotteryPrizes(ctx, owner, id, []PrizeSpec{
		{Name: "tv", Amount: 1, ProbDenominator: 5},
		{Name: "mug", Amount: 0, ProbDenominator: 10},
	})
	if !errors.Is(err, errs.ErrInvalidConfiguration) {
		t.Fatalf("Expected InvalidConfiguration, got %v", err)
	}
	if errs.FieldOf(err) != "prizes[1].amount" {
		t.Errorf("Expected the failing row to be named, got %q", errs.FieldOf(err))
	}
	l, _ := svc.Lottery(id)
	if len(l.Prizes) != 0 {
		t.Fatalf("Expected no prizes after a rejected batch, got %d", len(l.Prizes))
	}

	err = svc.AddLotteryPrizes(ctx, owner, id, []PrizeSpec{
		{Name: "tv", Amount: 1, ProbDenominator: 5},
		{Name: "mug", Amount: 3, ProbDenominator: 10},
	})
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	l, _ = svc.Lottery(id)
	if len(l.Prizes) != 2 || l.Prizes[1].Name != "mug" {
		t.Errorf("Unexpected prizes %+v", l.Prizes)
	}
}

func TestLotteryRegistry_ReadsReturnCopies(t *testing.T) {
	svc := newTestService(t, Options{})
	id := startReferenceLottery(t, svc)

	l, _ := svc.Lottery(id)
	l.Prizes[0].Remaining = 99
	l.Status = models.StatusClosed

	again, _ := svc.Lottery(id)
	if again.Prizes[0].Remaining != 1 || again.Status != models.StatusActive {
		t.Errorf("Expected the registry to be unaffected by caller mutation, got %+v", again)
	}
}
