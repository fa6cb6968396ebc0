package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/open-onethingcloud/tc-contracts/internal/models"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu        sync.RWMutex
	roles     map[common.Address]map[models.Role]bool
	lotteries []models.Lottery
	draws     map[uint64][]models.DrawRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles: make(map[common.Address]map[models.Role]bool),
		draws: make(map[uint64][]models.DrawRecord),
	}
}

func (s *MemoryStore) PutRole(_ context.Context, addr common.Address, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roles[addr] == nil {
		s.roles[addr] = make(map[models.Role]bool)
	}
	s.roles[addr][role] = true
	return nil
}

func (s *MemoryStore) DeleteRole(_ context.Context, addr common.Address, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.roles[addr], role)
	if len(s.roles[addr]) == 0 {
		delete(s.roles, addr)
	}
	return nil
}

func (s *MemoryStore) CreateLottery(_ context.Context, lottery models.Lottery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lottery.ID != uint64(len(s.lotteries)) {
		return fmt.Errorf("create lottery: id %d out of sequence, next is %d", lottery.ID, len(s.lotteries))
	}
	s.lotteries = append(s.lotteries, lottery.Clone())
	return nil
}

func (s *MemoryStore) AppendPrizes(_ context.Context, lotteryID uint64, first int, prizes []models.Prize) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lottery(lotteryID)
	if err != nil {
		return err
	}
	if first != len(l.Prizes) {
		return fmt.Errorf("append prizes: index %d out of sequence, next is %d", first, len(l.Prizes))
	}
	l.Prizes = append(l.Prizes, prizes...)
	return nil
}

func (s *MemoryStore) ActivateLottery(_ context.Context, lotteryID uint64, prizes []models.Prize) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lottery(lotteryID)
	if err != nil {
		return err
	}
	if len(prizes) != len(l.Prizes) {
		return fmt.Errorf("activate lottery: %d prizes given, %d stored", len(prizes), len(l.Prizes))
	}
	copy(l.Prizes, prizes)
	l.Status = models.StatusActive
	return nil
}

func (s *MemoryStore) CloseLottery(_ context.Context, lotteryID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lottery(lotteryID)
	if err != nil {
		return err
	}
	l.Status = models.StatusClosed
	return nil
}

func (s *MemoryStore) RecordDraw(_ context.Context, rec models.DrawRecord, remaining uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lottery(rec.LotteryID)
	if err != nil {
		return err
	}
	if rec.Sequence != uint64(len(s.draws[rec.LotteryID])) {
		return fmt.Errorf("record draw: sequence %d out of order", rec.Sequence)
	}
	if rec.Won() {
		if rec.PrizeIndex < 0 || rec.PrizeIndex >= len(l.Prizes) {
			return fmt.Errorf("record draw: prize %d: %w", rec.PrizeIndex, ErrNotFound)
		}
		l.Prizes[rec.PrizeIndex].Remaining = remaining
	}
	s.draws[rec.LotteryID] = append(s.draws[rec.LotteryID], rec)
	return nil
}

func (s *MemoryStore) Draws(_ context.Context, lotteryID uint64) ([]models.DrawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.lottery(lotteryID); err != nil {
		return nil, err
	}
	return append([]models.DrawRecord(nil), s.draws[lotteryID]...), nil
}

func (s *MemoryStore) Load(_ context.Context) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := &State{
		Roles:      make(map[common.Address][]models.Role),
		DrawCounts: make(map[uint64]uint64),
	}
	for addr, set := range s.roles {
		for _, r := range models.Roles {
			if set[r] {
				state.Roles[addr] = append(state.Roles[addr], r)
			}
		}
	}
	for _, l := range s.lotteries {
		state.Lotteries = append(state.Lotteries, l.Clone())
	}
	for id, draws := range s.draws {
		state.DrawCounts[id] = uint64(len(draws))
	}
	return state, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// lottery must be called with s.mu held.
func (s *MemoryStore) lottery(id uint64) (*models.Lottery, error) {
	if id >= uint64(len(s.lotteries)) {
		return nil, fmt.Errorf("lottery %d: %w", id, ErrNotFound)
	}
	return &s.lotteries[id], nil
}
