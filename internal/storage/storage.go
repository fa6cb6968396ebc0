// Package storage defines the durable state behind the lottery services.
//
// The services keep their working state in memory and write every mutation
// through a Store before applying it. A mutation the Store rejects is never
// applied, so each implementation must make every method all-or-nothing.
package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/open-onethingcloud/tc-contracts/internal/models"
)

// ErrNotFound is returned when a referenced lottery or prize does not exist.
var ErrNotFound = errors.New("storage: not found")

// State is everything a Store holds, as loaded at start-up.
type State struct {
	Roles     map[common.Address][]models.Role
	Lotteries []models.Lottery
	// DrawCounts is the number of draw records per lottery id.
	DrawCounts map[uint64]uint64
}

// Store persists roles, lotteries and the draw log.
type Store interface {
	PutRole(ctx context.Context, addr common.Address, role models.Role) error
	DeleteRole(ctx context.Context, addr common.Address, role models.Role) error

	CreateLottery(ctx context.Context, lottery models.Lottery) error
	// AppendPrizes stores prizes at positions first, first+1, ...
	AppendPrizes(ctx context.Context, lotteryID uint64, first int, prizes []models.Prize) error
	// ActivateLottery stores the frozen slice fields of prizes and marks the lottery active.
	ActivateLottery(ctx context.Context, lotteryID uint64, prizes []models.Prize) error
	CloseLottery(ctx context.Context, lotteryID uint64) error

	// RecordDraw appends rec to the draw log and, when rec won, sets the
	// prize's remaining amount to remaining. Both happen or neither does.
	RecordDraw(ctx context.Context, rec models.DrawRecord, remaining uint64) error
	Draws(ctx context.Context, lotteryID uint64) ([]models.DrawRecord, error)

	Load(ctx context.Context) (*State, error)
	Close() error
}
