// Package storagetest holds behaviour checks every storage.Store must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	player = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// Run exercises newStore against the storage.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("roles round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		mustNil(t, s.PutRole(ctx, owner, models.RoleAdmin))
		mustNil(t, s.PutRole(ctx, owner, models.RoleAdmin))
		mustNil(t, s.PutRole(ctx, player, models.RoleAuditor))
		mustNil(t, s.DeleteRole(ctx, player, models.RoleAuditor))

		state, err := s.Load(ctx)
		mustNil(t, err)
		if got := state.Roles[owner]; len(got) != 1 || got[0] != models.RoleAdmin {
			t.Errorf("expected owner to hold [admin], got %v", got)
		}
		if got := state.Roles[player]; len(got) != 0 {
			t.Errorf("expected player to hold no roles, got %v", got)
		}
	})

	t.Run("lottery lifecycle", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		mustNil(t, s.CreateLottery(ctx, models.Lottery{ID: 0, Name: "spring", Status: models.StatusCreated, SlotSpace: 120, CreatedAt: time.Now()}))
		mustNil(t, s.AppendPrizes(ctx, 0, 0, []models.Prize{
			{Name: "tv", Amount: 1, Remaining: 1, ProbDenominator: 5},
			{Name: "mug", Amount: 2, Remaining: 2, ProbDenominator: 10},
		}))
		if err := s.AppendPrizes(ctx, 0, 5, []models.Prize{{Name: "gap", Amount: 1, Remaining: 1, ProbDenominator: 5}}); err == nil {
			t.Error("expected out-of-sequence prize index to be rejected")
		}

		mustNil(t, s.ActivateLottery(ctx, 0, []models.Prize{
			{Name: "tv", Amount: 1, Remaining: 1, ProbDenominator: 5, SliceSize: 12, SlotRange: models.SlotRange{Start: 0, End: 12}},
			{Name: "mug", Amount: 2, Remaining: 2, ProbDenominator: 10, SliceSize: 6, SlotRange: models.SlotRange{Start: 12, End: 18}},
		}))

		state, err := s.Load(ctx)
		mustNil(t, err)
		if len(state.Lotteries) != 1 {
			t.Fatalf("expected 1 lottery, got %d", len(state.Lotteries))
		}
		l := state.Lotteries[0]
		if l.Name != "spring" || l.Status != models.StatusActive || l.SlotSpace != 120 {
			t.Errorf("unexpected lottery %+v", l)
		}
		if len(l.Prizes) != 2 || l.Prizes[1].SlotRange != (models.SlotRange{Start: 12, End: 18}) {
			t.Errorf("unexpected prizes %+v", l.Prizes)
		}

		mustNil(t, s.CloseLottery(ctx, 0))
		state, err = s.Load(ctx)
		mustNil(t, err)
		if state.Lotteries[0].Status != models.StatusClosed {
			t.Errorf("expected closed lottery, got %s", state.Lotteries[0].Status)
		}

		if err := s.CloseLottery(ctx, 7); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown lottery, got %v", err)
		}
	})

	t.Run("draw log", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		mustNil(t, s.CreateLottery(ctx, models.Lottery{ID: 0, Name: "summer", Status: models.StatusCreated, SlotSpace: 60, CreatedAt: time.Now()}))
		mustNil(t, s.AppendPrizes(ctx, 0, 0, []models.Prize{{Name: "bike", Amount: 3, Remaining: 3, ProbDenominator: 2}}))

		won := models.DrawRecord{
			ID:          "d-0",
			LotteryID:   0,
			Sequence:    0,
			Drawer:      player,
			CommitHash:  common.HexToHash("0x01"),
			RandomValue: 7,
			PrizeIndex:  0,
			CreatedAt:   time.Now(),
		}
		lost := won
		lost.ID, lost.Sequence, lost.PrizeIndex, lost.RandomValue = "d-1", 1, models.NoPrize, 40

		mustNil(t, s.RecordDraw(ctx, won, 2))
		mustNil(t, s.RecordDraw(ctx, lost, 0))
		if err := s.RecordDraw(ctx, lost, 0); err == nil {
			t.Error("expected a duplicate sequence to be rejected")
		}

		draws, err := s.Draws(ctx, 0)
		mustNil(t, err)
		if len(draws) != 2 {
			t.Fatalf("expected 2 draws, got %d", len(draws))
		}
		if draws[0].ID != "d-0" || draws[0].Drawer != player || draws[0].CommitHash != won.CommitHash {
			t.Errorf("unexpected first draw %+v", draws[0])
		}
		if draws[1].PrizeIndex != models.NoPrize || draws[1].RandomValue != 40 {
			t.Errorf("unexpected second draw %+v", draws[1])
		}

		state, err := s.Load(ctx)
		mustNil(t, err)
		if state.DrawCounts[0] != 2 {
			t.Errorf("expected 2 recorded draws, got %d", state.DrawCounts[0])
		}
		if got := state.Lotteries[0].Prizes[0].Remaining; got != 2 {
			t.Errorf("expected remaining 2 after one win, got %d", got)
		}
	})

	t.Run("rejected draw changes nothing", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		mustNil(t, s.CreateLottery(ctx, models.Lottery{ID: 0, Name: "autumn", Status: models.StatusCreated, SlotSpace: 60, CreatedAt: time.Now()}))
		mustNil(t, s.AppendPrizes(ctx, 0, 0, []models.Prize{{Name: "pen", Amount: 1, Remaining: 1, ProbDenominator: 2}}))

		bad := models.DrawRecord{ID: "d-x", LotteryID: 0, Sequence: 0, Drawer: player, PrizeIndex: 3, CreatedAt: time.Now()}
		if err := s.RecordDraw(ctx, bad, 0); err == nil {
			t.Fatal("expected a draw for an unknown prize to be rejected")
		}

		draws, err := s.Draws(ctx, 0)
		mustNil(t, err)
		if len(draws) != 0 {
			t.Errorf("expected an empty draw log, got %d records", len(draws))
		}
	})
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
