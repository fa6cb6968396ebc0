package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/logger"
	"github.com/google/uuid"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

// eventBuffer is how far a subscriber may fall behind before its events are dropped.
const eventBuffer = 64

// DrawEngine resolves user draws against the frozen slot partition of a lottery.
type DrawEngine struct {
	lotteries *LotteryRegistry
	admins    *AdminRegistry
	source    RandomnessSource
	store     storage.Store
	now       func() time.Time

	drawFeed  event.FeedOf[models.DrawInfoEvent]
	prizeFeed event.FeedOf[models.PrizeInfoEvent]
}

// NewDrawEngine creates a DrawEngine.
func NewDrawEngine(lotteries *LotteryRegistry, admins *AdminRegistry, source RandomnessSource, store storage.Store) *DrawEngine {
	return &DrawEngine{
		lotteries: lotteries,
		admins:    admins,
		source:    source,
		store:     store,
		now:       time.Now,
	}
}

// UserDraw draws once for caller in an active lottery.
//
// The random value selects a slot. If the slot belongs to a prize with stock
// left, that prize is won and its remaining amount drops by one. Any other
// slot, including one whose prize is sold out, wins nothing; the draw is not
// repeated. The record and the decrement are stored together, or the draw
// fails and nothing changes.
func (e *DrawEngine) UserDraw(ctx context.Context, caller common.Address, lotteryID uint64) (*models.DrawRecord, error) {
	entry, err := e.lotteries.entry(lotteryID)
	if err != nil {
		return nil, err
	}

	rec, commit, err := e.draw(ctx, entry, caller, lotteryID)
	if err != nil {
		return nil, err
	}

	e.drawFeed.Send(models.DrawInfoEvent{
		LotteryID: lotteryID,
		Hash:      commit.Hash,
		Random:    commit.Random,
		RandomRes: commit.Value,
	})
	if rec.Won() {
		e.prizeFeed.Send(models.PrizeInfoEvent{
			Drawer:     rec.Drawer,
			LotteryID:  lotteryID,
			PrizeIndex: rec.PrizeIndex,
		})
	}
	return rec, nil
}

func (e *DrawEngine) draw(ctx context.Context, entry *lotteryEntry, caller common.Address, lotteryID uint64) (*models.DrawRecord, Commitment, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.lottery.Status != models.StatusActive {
		logger.Warningf("Rejected draw by %s on lottery %d: status %s", caller.Hex(), lotteryID, entry.lottery.Status)
		return nil, Commitment{}, errs.Newf(errs.InvalidState, "status", "lottery %d is %s, draws need an active lottery", lotteryID, entry.lottery.Status)
	}

	seq := entry.draws
	commit, err := e.source.Commit(ctx, caller, lotteryID, seq)
	if err != nil {
		logger.Errorf("Randomness for lottery %d draw %d failed: %v", lotteryID, seq, err)
		return nil, Commitment{}, fmt.Errorf("user draw: %w", err)
	}

	index := Lookup(entry.partition, commit.Value)
	var remaining uint64
	if index != models.NoPrize {
		if stock := entry.lottery.Prizes[index].Remaining; stock > 0 {
			remaining = stock - 1
		} else {
			index = models.NoPrize
		}
	}

	rec := &models.DrawRecord{
		ID:          uuid.NewString(),
		LotteryID:   lotteryID,
		Sequence:    seq,
		Drawer:      caller,
		CommitHash:  commit.Hash,
		RandomValue: commit.Value,
		PrizeIndex:  index,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.RecordDraw(ctx, *rec, remaining); err != nil {
		logger.Errorf("Failed to persist lottery %d draw %d: %v", lotteryID, seq, err)
		return nil, Commitment{}, fmt.Errorf("user draw: %w", err)
	}

	if rec.Won() {
		entry.lottery.Prizes[index].Remaining = remaining
		logger.Infof("Lottery %d draw %d: %s won prize %d %q (slot %d, %d left)",
			lotteryID, seq, caller.Hex(), index, entry.lottery.Prizes[index].Name, commit.Value, remaining)
	} else {
		logger.V(1).Infof("Lottery %d draw %d: %s won nothing (slot %d)", lotteryID, seq, caller.Hex(), commit.Value)
	}
	entry.draws++
	return rec, commit, nil
}

// Draws returns the draw log of a lottery. The caller must be an admin or an auditor.
func (e *DrawEngine) Draws(ctx context.Context, caller common.Address, lotteryID uint64) ([]models.DrawRecord, error) {
	if err := e.admins.requireAnyRole(caller, models.RoleAdmin, models.RoleAuditor); err != nil {
		return nil, err
	}
	if _, err := e.lotteries.entry(lotteryID); err != nil {
		return nil, err
	}
	draws, err := e.store.Draws(ctx, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	return draws, nil
}

// SubscribeDrawInfo delivers a models.DrawInfoEvent on ch for every draw.
// Draws never wait for ch; events are dropped while it is full.
func (e *DrawEngine) SubscribeDrawInfo(ch chan<- models.DrawInfoEvent) event.Subscription {
	return subscribeDropping(&e.drawFeed, ch, "draw info")
}

// SubscribePrizeInfo delivers a models.PrizeInfoEvent on ch for every winning draw.
// Draws never wait for ch; events are dropped while it is full.
func (e *DrawEngine) SubscribePrizeInfo(ch chan<- models.PrizeInfoEvent) event.Subscription {
	return subscribeDropping(&e.prizeFeed, ch, "prize info")
}

// subscribeDropping relays feed to out from its own goroutine so that
// feed.Send only ever waits on the relay, never on out.
func subscribeDropping[T any](feed *event.FeedOf[T], out chan<- T, name string) event.Subscription {
	in := make(chan T, eventBuffer)
	sub := feed.Subscribe(in)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case v := <-in:
				select {
				case out <- v:
				default:
					logger.Warningf("Dropped %s event, subscriber is not keeping up", name)
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}
