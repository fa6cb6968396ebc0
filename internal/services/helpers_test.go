package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	admin2   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	auditor  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

// scriptedSource returns the queued slot values in order, then repeats the last one.
type scriptedSource struct {
	mu     sync.Mutex
	values []uint64
	calls  int
	err    error
}

func (s *scriptedSource) Commit(_ context.Context, drawer common.Address, lotteryID, nonce uint64) (Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return Commitment{}, s.err
	}
	i := s.calls
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.calls++
	v := s.values[i]
	return Commitment{
		Hash:   CommitHash(common.Hash{}, drawer, lotteryID, nonce),
		Random: new(big.Int).SetUint64(v),
		Value:  v,
	}, nil
}

// flakyStore fails RecordDraw while failDraws is set.
type flakyStore struct {
	storage.Store
	mu        sync.Mutex
	failDraws bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) RecordDraw(ctx context.Context, rec models.DrawRecord, remaining uint64) error {
	s.mu.Lock()
	fail := s.failDraws
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.Store.RecordDraw(ctx, rec, remaining)
}

func (s *flakyStore) setFailDraws(v bool) {
	s.mu.Lock()
	s.failDraws = v
	s.mu.Unlock()
}

func newTestService(t *testing.T, opts Options) *LotteryService {
	t.Helper()
	if opts.Owner == (common.Address{}) {
		opts.Owner = owner
	}
	svc, err := NewLotteryService(context.Background(), opts)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// startReferenceLottery creates and starts a lottery with four prizes of
// denominators 5, 10, 15, 20 and amounts 1..4.
func startReferenceLottery(t *testing.T, svc *LotteryService) uint64 {
	t.Helper()
	ctx := context.Background()

	id, err := svc.CreateLottery(ctx, owner, "reference")
	if err != nil {
		t.Fatalf("Failed to create lottery: %v", err)
	}
	for i := int64(0); i < 4; i++ {
		if err := svc.AddLotteryPrize(ctx, owner, id, fmt.Sprintf("prize%d", i), i+1, (i+1)*5); err != nil {
			t.Fatalf("Failed to add prize %d: %v", i, err)
		}
	}
	if err := svc.StartLottery(ctx, owner, id); err != nil {
		t.Fatalf("Failed to start lottery: %v", err)
	}
	return id
}
