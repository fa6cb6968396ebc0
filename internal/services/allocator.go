package services

import (
	"fmt"

	"github.com/open-onethingcloud/tc-contracts/internal/errs"
	"github.com/open-onethingcloud/tc-contracts/internal/models"
)

// DefaultSlotSpace is the size of the slot space shared by every lottery.
// 60 is the least common multiple of the denominators 5, 10, 15 and 20.
const DefaultSlotSpace uint64 = 60

// Allocate partitions [0, space) into one contiguous slice per denominator,
// in order. Slice i holds space/denominators[i] slots and starts where slice
// i-1 ends. Slots left over after the last slice win nothing.
func Allocate(space uint64, denominators []uint64) (*models.SlotPartition, error) {
	if space == 0 {
		return nil, errs.New(errs.InvalidConfiguration, "space", "slot space must be positive")
	}

	partition := &models.SlotPartition{
		Space:  space,
		Slices: make([]models.Slice, 0, len(denominators)),
	}
	var offset uint64
	for i, d := range denominators {
		field := fmt.Sprintf("prizes[%d].probDenominator", i)
		if err := checkDenominator(space, d, field); err != nil {
			return nil, err
		}
		size := space / d
		if size > space-offset {
			return nil, errs.Newf(errs.InvalidConfiguration, "prizes",
				"prize weights need %d slots, only %d available", offset+size, space)
		}
		partition.Slices = append(partition.Slices, models.Slice{
			PrizeIndex: i,
			Start:      offset,
			End:        offset + size,
		})
		offset += size
	}
	return partition, nil
}

func checkDenominator(space, d uint64, field string) error {
	if d == 0 {
		return errs.New(errs.InvalidConfiguration, field, "must be positive")
	}
	if d > space || space%d != 0 {
		return errs.Newf(errs.InvalidConfiguration, field, "%d does not divide the slot space %d", d, space)
	}
	return nil
}

// Lookup returns the index of the prize owning slot, or models.NoPrize.
func Lookup(p *models.SlotPartition, slot uint64) int {
	lo, hi := 0, len(p.Slices)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch s := p.Slices[mid]; {
		case slot < s.Start:
			hi = mid
		case slot >= s.End:
			lo = mid + 1
		default:
			return s.PrizeIndex
		}
	}
	return models.NoPrize
}

// applyPartition copies the slice of every prize into its SliceSize and SlotRange.
func applyPartition(prizes []models.Prize, p *models.SlotPartition) []models.Prize {
	out := append([]models.Prize(nil), prizes...)
	for _, s := range p.Slices {
		r := models.SlotRange{Start: s.Start, End: s.End}
		out[s.PrizeIndex].SliceSize = r.Len()
		out[s.PrizeIndex].SlotRange = r
	}
	return out
}

// partitioned reports whether prizes carry the slot ranges of a started lottery.
func partitioned(prizes []models.Prize) bool {
	return len(prizes) > 0 && prizes[0].SliceSize > 0
}

// partitionOf rebuilds the partition recorded on started prizes.
func partitionOf(space uint64, prizes []models.Prize) *models.SlotPartition {
	p := &models.SlotPartition{Space: space, Slices: make([]models.Slice, 0, len(prizes))}
	for i, prize := range prizes {
		p.Slices = append(p.Slices, models.Slice{PrizeIndex: i, Start: prize.SlotRange.Start, End: prize.SlotRange.End})
	}
	return p
}
