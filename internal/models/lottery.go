package models

import (
	"time"
)

// Status is the lifecycle stage of a lottery.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed" // terminal
)

// SlotRange is a half-open interval [Start, End) of the slot space.
type SlotRange struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len returns the number of slots in the range.
func (r SlotRange) Len() uint64 {
	return r.End - r.Start
}

// Prize is a single prize category of a lottery.
// Its position in the lottery's prize list is its identity for slot lookups.
// SliceSize and SlotRange stay zero until the lottery is started.
type Prize struct {
	Name            string    `json:"name"`
	Amount          uint64    `json:"amount"`
	Remaining       uint64    `json:"remaining"`
	ProbDenominator uint64    `json:"probDenominator"` // 1-in-N weight
	SliceSize       uint64    `json:"sliceSize"`
	SlotRange       SlotRange `json:"slotRange"`
}

// Lottery is a configured lottery and its ordered prize list.
type Lottery struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	SlotSpace uint64    `json:"slotSpace"` // slot space the denominators were checked against
	Prizes    []Prize   `json:"prizes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the lottery.
func (l Lottery) Clone() Lottery {
	c := l
	c.Prizes = make([]Prize, len(l.Prizes))
	copy(c.Prizes, l.Prizes)
	return c
}

// Slice is the contiguous part of the slot space owned by one prize.
type Slice struct {
	PrizeIndex int    `json:"prizeIndex"`
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
}

// SlotPartition is the frozen mapping of [0, Space) onto a lottery's prizes.
// Slots at or beyond Allocated belong to no prize.
type SlotPartition struct {
	Space  uint64  `json:"space"`
	Slices []Slice `json:"slices"`
}

// Allocated returns the first slot of the no-prize zone.
func (p *SlotPartition) Allocated() uint64 {
	if len(p.Slices) == 0 {
		return 0
	}
	return p.Slices[len(p.Slices)-1].End
}
