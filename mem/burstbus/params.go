package burstbus

import (
	"errors"
	"fmt"
)

// Word is the data carried by one beat. Only the low DataWidth bits are
// meaningful.
type Word uint64

// ByteMask selects the byte lanes a write beat updates. Bit i enables lane i.
type ByteMask uint8

// ErrInvalidParams is wrapped by every bus parameter error.
var ErrInvalidParams = errors.New("invalid bus parameters")

// Params describes the shape of a BurstBus.
type Params struct {
	AddressWidth     int
	DataWidth        int
	GranularityBytes int
	BurstLen         int
}

// Validate checks that the parameters describe a bus that can be built.
func (p Params) Validate() error {
	if p.AddressWidth < 1 || p.AddressWidth > 64 {
		return fmt.Errorf("%w: address width %d is not in [1, 64]",
			ErrInvalidParams, p.AddressWidth)
	}

	if p.GranularityBytes < 1 {
		return fmt.Errorf("%w: granularity %d must be positive",
			ErrInvalidParams, p.GranularityBytes)
	}

	if p.DataWidth < 8 || p.DataWidth > 64 ||
		p.DataWidth%(8*p.GranularityBytes) != 0 {
		return fmt.Errorf(
			"%w: data width %d must be in [8, 64] and a multiple of %d",
			ErrInvalidParams, p.DataWidth, 8*p.GranularityBytes)
	}

	if p.BurstLen <= 1 {
		return fmt.Errorf("%w: burst length %d must be greater than 1",
			ErrInvalidParams, p.BurstLen)
	}

	return nil
}

// Lanes returns the number of independently writable lanes of a word.
func (p Params) Lanes() int {
	return p.DataWidth / (8 * p.GranularityBytes)
}

// FullMask returns the mask that enables every lane.
func (p Params) FullMask() ByteMask {
	return FullMask(p.Lanes())
}

// DataMask returns the mask of the meaningful bits of a word.
func (p Params) DataMask() Word {
	return DataMask(p.DataWidth)
}

// AddressMask returns the mask of the meaningful bits of an address.
func (p Params) AddressMask() uint64 {
	if p.AddressWidth >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << p.AddressWidth) - 1
}

// FullMask returns a mask that enables the given number of lanes.
func FullMask(lanes int) ByteMask {
	if lanes >= 8 {
		return 0xff
	}

	return ByteMask((1 << lanes) - 1)
}

// DataMask returns a word with the low width bits set.
func DataMask(width int) Word {
	if width >= 64 {
		return ^Word(0)
	}

	return (Word(1) << width) - 1
}

// MergeLanes writes the lanes of data enabled by mask into old. Each lane is
// laneBits wide.
func MergeLanes(old, data Word, mask ByteMask, laneBits int) Word {
	result := old

	for lane := 0; lane < 8 && lane*laneBits < 64; lane++ {
		if mask&(1<<lane) == 0 {
			continue
		}

		laneMask := DataMask(laneBits) << (lane * laneBits)
		result = (result &^ laneMask) | (data & laneMask)
	}

	return result
}
