// Package storage keeps the contents of word-addressed memories.
package storage

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/delaymem/mem/burstbus"
)

// ErrOutOfRange is returned when an address is beyond the capacity.
var ErrOutOfRange = errors.New("address out of range")

const unitWords = 1024

// A Storage keeps the words of a memory.
//
// Words are managed in units of 1024. A unit is allocated the first time one
// of its words is touched, so large, sparsely used memories stay small.
type Storage struct {
	capacity  uint64
	dataWidth int
	random    bool
	seed      int64
	units     map[uint64][]burstbus.Word
}

// New creates a zero-initialized storage of capacity words, each dataWidth
// bits wide.
func New(capacity uint64, dataWidth int) *Storage {
	return &Storage{
		capacity:  capacity,
		dataWidth: dataWidth,
		units:     make(map[uint64][]burstbus.Word),
	}
}

// NewRandom creates a storage whose initial contents are pseudo-random. The
// contents of a word only depend on the seed and its address.
func NewRandom(capacity uint64, dataWidth int, seed int64) *Storage {
	s := New(capacity, dataWidth)
	s.random = true
	s.seed = seed

	return s
}

// Capacity returns the number of words.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// DataWidth returns the width of a word in bits.
func (s *Storage) DataWidth() int {
	return s.dataWidth
}

func (s *Storage) unit(address uint64) ([]burstbus.Word, error) {
	if address >= s.capacity {
		return nil, fmt.Errorf("%w: %#x >= %#x",
			ErrOutOfRange, address, s.capacity)
	}

	base := address / unitWords
	u, ok := s.units[base]
	if !ok {
		u = s.newUnit(base)
		s.units[base] = u
	}

	return u, nil
}

func (s *Storage) newUnit(base uint64) []burstbus.Word {
	u := make([]burstbus.Word, unitWords)
	if !s.random {
		return u
	}

	mask := burstbus.DataMask(s.dataWidth)
	r := rand.New(rand.NewSource(s.seed ^ int64(base*0x9e3779b97f4a7c15)))

	for i := range u {
		u[i] = burstbus.Word(r.Uint64()) & mask
	}

	return u
}

// Read returns the word at the address.
func (s *Storage) Read(address uint64) (burstbus.Word, error) {
	u, err := s.unit(address)
	if err != nil {
		return 0, err
	}

	return u[address%unitWords], nil
}

// Write updates the lanes of the word selected by mask. Each lane is laneBits
// wide.
func (s *Storage) Write(
	address uint64,
	data burstbus.Word,
	mask burstbus.ByteMask,
	laneBits int,
) error {
	u, err := s.unit(address)
	if err != nil {
		return err
	}

	i := address % unitWords
	u[i] = burstbus.MergeLanes(u[i], data, mask, laneBits) &
		burstbus.DataMask(s.dataWidth)

	return nil
}

// NumAllocatedUnits returns how many units have been touched.
func (s *Storage) NumAllocatedUnits() int {
	return len(s.units)
}
