package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/logger"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

// PrizeSpec is the configuration of a prize before it is added to a lottery.
type PrizeSpec struct {
	Name            string
	Amount          int64
	ProbDenominator int64
}

// lotteryEntry is one lottery and the lock that serialises its mutations.
type lotteryEntry struct {
	mu        sync.RWMutex
	lottery   models.Lottery
	partition *models.SlotPartition // nil until started
	draws     uint64                // number of recorded draws
}

// LotteryRegistry stores lotteries and their prizes.
type LotteryRegistry struct {
	mu        sync.RWMutex
	lotteries []*lotteryEntry
	admins    *AdminRegistry
	store     storage.Store
	space     uint64
	now       func() time.Time
}

// NewLotteryRegistry restores the lotteries in state. Every lottery that is
// not closed must have been created with the same slot space.
func NewLotteryRegistry(admins *AdminRegistry, store storage.Store, space uint64, state *storage.State) (*LotteryRegistry, error) {
	if space == 0 {
		return nil, errs.New(errs.InvalidConfiguration, "space", "slot space must be positive")
	}
	r := &LotteryRegistry{
		admins: admins,
		store:  store,
		space:  space,
		now:    time.Now,
	}
	if state == nil {
		return r, nil
	}
	for i, l := range state.Lotteries {
		if l.ID != uint64(i) {
			return nil, fmt.Errorf("restore lottery %d: stored at position %d", l.ID, i)
		}
		if l.Status != models.StatusClosed && l.SlotSpace != space {
			return nil, errs.Newf(errs.InvalidConfiguration, "space",
				"lottery %d uses slot space %d, the service is configured with %d", l.ID, l.SlotSpace, space)
		}
		e := &lotteryEntry{lottery: l.Clone(), draws: state.DrawCounts[l.ID]}
		if partitioned(l.Prizes) {
			e.partition = partitionOf(l.SlotSpace, l.Prizes)
		}
		r.lotteries = append(r.lotteries, e)
	}
	return r, nil
}

// Space returns the slot space size of new lotteries.
func (r *LotteryRegistry) Space() uint64 {
	return r.space
}

// CreateLottery creates a lottery in the created status and returns its id.
func (r *LotteryRegistry) CreateLottery(ctx context.Context, caller common.Address, name string) (uint64, error) {
	if err := r.admins.requireAnyRole(caller, models.RoleAdmin); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errs.New(errs.InvalidConfiguration, "name", "lottery name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lottery := models.Lottery{
		ID:        uint64(len(r.lotteries)),
		Name:      name,
		Status:    models.StatusCreated,
		SlotSpace: r.space,
		Prizes:    []models.Prize{},
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.CreateLottery(ctx, lottery); err != nil {
		logger.Errorf("Failed to persist lottery %q: %v", name, err)
		return 0, fmt.Errorf("create lottery: %w", err)
	}
	r.lotteries = append(r.lotteries, &lotteryEntry{lottery: lottery})
	logger.Infof("Created lottery %d %q", lottery.ID, name)
	return lottery.ID, nil
}

// AddLotteryPrize appends a prize to a lottery that has not been started.
func (r *LotteryRegistry) AddLotteryPrize(ctx context.Context, caller common.Address, lotteryID uint64, name string, amount, probDenominator int64) error {
	return r.AddLotteryPrizes(ctx, caller, lotteryID, []PrizeSpec{{Name: name, Amount: amount, ProbDenominator: probDenominator}})
}

// AddLotteryPrizes appends every spec to a lottery that has not been started.
// Either all of them are added or none are.
func (r *LotteryRegistry) AddLotteryPrizes(ctx context.Context, caller common.Address, lotteryID uint64, specs []PrizeSpec) error {
	if err := r.admins.requireAnyRole(caller, models.RoleAdmin); err != nil {
		return err
	}
	e, err := r.entry(lotteryID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lottery.Status != models.StatusCreated {
		return errs.Newf(errs.InvalidState, "status", "lottery %d is %s, prizes can only be added while created", lotteryID, e.lottery.Status)
	}
	if len(specs) == 0 {
		return errs.New(errs.InvalidConfiguration, "prizes", "no prizes given")
	}

	prizes := make([]models.Prize, 0, len(specs))
	for i, spec := range specs {
		prize, err := r.newPrize(spec, len(specs) > 1, i)
		if err != nil {
			return err
		}
		prizes = append(prizes, prize)
	}

	first := len(e.lottery.Prizes)
	if err := r.store.AppendPrizes(ctx, lotteryID, first, prizes); err != nil {
		logger.Errorf("Failed to persist prizes for lottery %d: %v", lotteryID, err)
		return fmt.Errorf("add lottery prize: %w", err)
	}
	e.lottery.Prizes = append(e.lottery.Prizes, prizes...)
	for i, p := range prizes {
		logger.Infof("Added prize %d %q (amount %d, 1 in %d) to lottery %d", first+i, p.Name, p.Amount, p.ProbDenominator, lotteryID)
	}
	return nil
}

func (r *LotteryRegistry) newPrize(spec PrizeSpec, batch bool, row int) (models.Prize, error) {
	field := func(name string) string {
		if batch {
			return fmt.Sprintf("prizes[%d].%s", row, name)
		}
		return name
	}

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return models.Prize{}, errs.New(errs.InvalidConfiguration, field("name"), "prize name is required")
	}
	if spec.Amount <= 0 {
		return models.Prize{}, errs.Newf(errs.InvalidConfiguration, field("amount"), "must be positive, got %d", spec.Amount)
	}
	if spec.ProbDenominator <= 0 {
		return models.Prize{}, errs.Newf(errs.InvalidConfiguration, field("probDenominator"), "must be positive, got %d", spec.ProbDenominator)
	}
	if err := checkDenominator(r.space, uint64(spec.ProbDenominator), field("probDenominator")); err != nil {
		return models.Prize{}, err
	}
	return models.Prize{
		Name:            name,
		Amount:          uint64(spec.Amount),
		Remaining:       uint64(spec.Amount),
		ProbDenominator: uint64(spec.ProbDenominator),
	}, nil
}

// StartLottery freezes the slot partition of a created lottery and activates it.
func (r *LotteryRegistry) StartLottery(ctx context.Context, caller common.Address, lotteryID uint64) error {
	if err := r.admins.requireAnyRole(caller, models.RoleAdmin); err != nil {
		return err
	}
	e, err := r.entry(lotteryID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lottery.Status != models.StatusCreated {
		return errs.Newf(errs.InvalidState, "status", "lottery %d is already %s", lotteryID, e.lottery.Status)
	}
	if len(e.lottery.Prizes) == 0 {
		return errs.Newf(errs.InvalidState, "prizes", "lottery %d has no prizes", lotteryID)
	}

	denominators := make([]uint64, len(e.lottery.Prizes))
	for i, p := range e.lottery.Prizes {
		denominators[i] = p.ProbDenominator
	}
	partition, err := Allocate(r.space, denominators)
	if err != nil {
		return err
	}

	prizes := applyPartition(e.lottery.Prizes, partition)
	if err := r.store.ActivateLottery(ctx, lotteryID, prizes); err != nil {
		logger.Errorf("Failed to persist start of lottery %d: %v", lotteryID, err)
		return fmt.Errorf("start lottery: %w", err)
	}
	e.lottery.Prizes = prizes
	e.lottery.Status = models.StatusActive
	e.partition = partition
	logger.Infof("Started lottery %d: %d of %d slots allocated", lotteryID, partition.Allocated(), partition.Space)
	return nil
}

// CloseLottery ends a lottery. No further draws or prize edits are accepted.
func (r *LotteryRegistry) CloseLottery(ctx context.Context, caller common.Address, lotteryID uint64) error {
	if err := r.admins.requireAnyRole(caller, models.RoleAdmin); err != nil {
		return err
	}
	e, err := r.entry(lotteryID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lottery.Status == models.StatusClosed {
		return errs.Newf(errs.InvalidState, "status", "lottery %d is already closed", lotteryID)
	}
	if err := r.store.CloseLottery(ctx, lotteryID); err != nil {
		logger.Errorf("Failed to persist close of lottery %d: %v", lotteryID, err)
		return fmt.Errorf("close lottery: %w", err)
	}
	e.lottery.Status = models.StatusClosed
	logger.Infof("Closed lottery %d after %d draws", lotteryID, e.draws)
	return nil
}

// LotteriesLength returns the number of lotteries ever created.
func (r *LotteryRegistry) LotteriesLength() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.lotteries))
}

// Lottery returns a copy of a lottery.
func (r *LotteryRegistry) Lottery(lotteryID uint64) (models.Lottery, error) {
	e, err := r.entry(lotteryID)
	if err != nil {
		return models.Lottery{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lottery.Clone(), nil
}

// LotteryPrizeInfo returns a copy of one prize of a lottery.
func (r *LotteryRegistry) LotteryPrizeInfo(lotteryID uint64, index int) (models.Prize, error) {
	e, err := r.entry(lotteryID)
	if err != nil {
		return models.Prize{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if index < 0 || index >= len(e.lottery.Prizes) {
		return models.Prize{}, errs.Newf(errs.NotFound, "index", "lottery %d has no prize %d", lotteryID, index)
	}
	return e.lottery.Prizes[index], nil
}

// Partition returns a copy of the frozen slot partition of a started lottery.
func (r *LotteryRegistry) Partition(lotteryID uint64) (*models.SlotPartition, error) {
	e, err := r.entry(lotteryID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.partition == nil {
		return nil, errs.Newf(errs.InvalidState, "status", "lottery %d has not been started", lotteryID)
	}
	p := *e.partition
	p.Slices = append([]models.Slice(nil), e.partition.Slices...)
	return &p, nil
}

func (r *LotteryRegistry) entry(lotteryID uint64) (*lotteryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lotteryID >= uint64(len(r.lotteries)) {
		return nil, errs.Newf(errs.NotFound, "lotteryId", "lottery %d does not exist", lotteryID)
	}
	return r.lotteries[lotteryID], nil
}
