package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NoPrize is the prize index recorded for a draw that won nothing.
const NoPrize = -1

// DrawRecord is the immutable outcome of one draw.
type DrawRecord struct {
	ID          string         `json:"id"`
	LotteryID   uint64         `json:"lotteryId"`
	Sequence    uint64         `json:"sequence"`
	Drawer      common.Address `json:"drawer"`
	CommitHash  common.Hash    `json:"commitHash"`
	RandomValue uint64         `json:"randomValue"`
	PrizeIndex  int            `json:"prizeIndex"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Won reports whether the draw resolved to a prize.
func (r DrawRecord) Won() bool {
	return r.PrizeIndex != NoPrize
}

// DrawInfoEvent is published for every draw.
type DrawInfoEvent struct {
	LotteryID uint64      `json:"lotteryId"`
	Hash      common.Hash `json:"hash"`
	Random    *big.Int    `json:"random"`
	RandomRes uint64      `json:"randomRes"`
}

// PrizeInfoEvent is published when a draw wins a prize.
type PrizeInfoEvent struct {
	Drawer     common.Address `json:"drawer"`
	LotteryID  uint64         `json:"lotteryId"`
	PrizeIndex int            `json:"prizeIndex"`
}
