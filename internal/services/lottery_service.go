package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/logger"

	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

// Options configures a LotteryService.
type Options struct {
	Owner     common.Address
	Store     storage.Store
	SlotSpace uint64           // DefaultSlotSpace when zero
	Source    RandomnessSource // KeccakSource over CryptoSeed when nil
}

// LotteryService wires the admin registry, the lottery registry and the draw engine
// over one store.
type LotteryService struct {
	*AdminRegistry
	*LotteryRegistry
	*DrawEngine

	store storage.Store
}

// NewLotteryService restores state from opts.Store and returns a ready service.
func NewLotteryService(ctx context.Context, opts Options) (*LotteryService, error) {
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}
	if opts.SlotSpace == 0 {
		opts.SlotSpace = DefaultSlotSpace
	}
	if opts.Source == nil {
		opts.Source = NewKeccakSource(CryptoSeed{}, opts.SlotSpace)
	}

	state, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	admins, err := NewAdminRegistry(ctx, opts.Owner, opts.Store, state)
	if err != nil {
		return nil, err
	}
	lotteries, err := NewLotteryRegistry(admins, opts.Store, opts.SlotSpace, state)
	if err != nil {
		return nil, err
	}
	logger.Infof("Lottery service ready: owner %s, %d lotteries, slot space %d",
		opts.Owner.Hex(), lotteries.LotteriesLength(), lotteries.Space())

	return &LotteryService{
		AdminRegistry:   admins,
		LotteryRegistry: lotteries,
		DrawEngine:      NewDrawEngine(lotteries, admins, opts.Source, opts.Store),
		store:           opts.Store,
	}, nil
}

// Close releases the underlying store.
func (s *LotteryService) Close() error {
	return s.store.Close()
}
