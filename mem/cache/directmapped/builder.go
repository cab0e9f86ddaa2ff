package directmapped

import (
	"errors"
	"fmt"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/timing"
)

// Errors returned by Build.
var (
	ErrNumLinesNotPowerOfTwo = errors.New("number of lines is not a power of two")
	ErrBurstTooShort         = errors.New("burst length must be greater than 1")
	ErrInvalidDataWidth      = errors.New("invalid data width")
	ErrInvalidCapacity       = errors.New("invalid local capacity")
)

// A Builder can build direct-mapped caches.
type Builder struct {
	engine      timing.Engine
	numLines    int
	burstLen    int
	dataWidth   int
	waitCycles  int
	baseAddress uint64
	bufferSize  int

	lutramBacked   bool
	lutramCapacity uint64
}

// MakeBuilder returns a Builder for a 64-line cache with 8-word lines.
func MakeBuilder() Builder {
	return Builder{
		numLines:   64,
		burstLen:   8,
		dataWidth:  32,
		waitCycles: 1,
		bufferSize: 1,
	}
}

// WithEngine sets the engine that ticks the cache.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithNumLines sets the number of lines. It must be a power of two.
func (b Builder) WithNumLines(n int) Builder {
	b.numLines = n
	return b
}

// WithBurstLen sets the number of words in a line, which is also the length
// of every refill and eviction burst.
func (b Builder) WithBurstLen(n int) Builder {
	b.burstLen = n
	return b
}

// WithDataWidth sets the width of a word in bits.
func (b Builder) WithDataWidth(w int) Builder {
	b.dataWidth = w
	return b
}

// WithWaitCycles sets the number of idle cycles between an eviction and the
// refill that follows it.
func (b Builder) WithWaitCycles(n int) Builder {
	b.waitCycles = n
	return b
}

// WithBaseAddress sets the address of the backing store that line address 0
// maps to.
func (b Builder) WithBaseAddress(addr uint64) Builder {
	b.baseAddress = addr
	return b
}

// WithBufferSize sets the incoming buffer size of the ports.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// WithLUTRAMBacked makes the cache serve every access from a local array of
// the given number of words. No backing store is used.
func (b Builder) WithLUTRAMBacked(capacityWords uint64) Builder {
	b.lutramBacked = true
	b.lutramCapacity = capacityWords

	return b
}

func (b Builder) validate() error {
	if b.dataWidth < 8 || b.dataWidth > 64 || b.dataWidth%8 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDataWidth, b.dataWidth)
	}

	if b.lutramBacked {
		if b.lutramCapacity == 0 {
			return ErrInvalidCapacity
		}

		return nil
	}

	if b.numLines <= 0 || b.numLines&(b.numLines-1) != 0 {
		return fmt.Errorf("%w: %d", ErrNumLinesNotPowerOfTwo, b.numLines)
	}

	if b.burstLen <= 1 {
		return fmt.Errorf("%w: %d", ErrBurstTooShort, b.burstLen)
	}

	if b.waitCycles < 1 {
		return fmt.Errorf("wait cycles must be positive, got %d", b.waitCycles)
	}

	return nil
}

// Build creates a cache and registers it with the engine.
func (b Builder) Build(name string) (*Comp, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}

	c := &Comp{
		ComponentBase: modeling.NewComponentBase(name),
		numLines:      uint64(b.numLines),
		burstLen:      uint64(b.burstLen),
		dataWidth:     b.dataWidth,
		waitCycles:    b.waitCycles,
		baseAddress:   b.baseAddress,
		lutramBacked:  b.lutramBacked,
		topPort: burstbus.NewPort(
			naming.BuildName(name, "TopPort"), b.bufferSize),
	}

	if b.lutramBacked {
		c.local = make([]burstbus.Word, b.lutramCapacity)
	} else {
		c.lines = make([]Line, b.numLines)
		c.data = make([]burstbus.Word, b.numLines*b.burstLen)
		c.bottomPort = burstbus.NewPort(
			naming.BuildName(name, "BottomPort"), b.bufferSize)
		c.master = burstbus.NewMaster(c.bottomPort)
	}

	if b.engine != nil {
		b.engine.RegisterTicker(c)
	}

	return c, nil
}
