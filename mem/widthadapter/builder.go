package widthadapter

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/sim/timing"
)

// ErrInvalidRatio is returned when the wide width is not a power-of-two
// multiple of the narrow width.
var ErrInvalidRatio = errors.New("invalid width ratio")

// A Builder can build width adapters.
type Builder struct {
	engine      timing.Engine
	narrowWidth int
	wideWidth   int
	bufferSize  int
}

// MakeBuilder returns a Builder that packs two 16-bit words into one 32-bit
// word.
func MakeBuilder() Builder {
	return Builder{
		narrowWidth: 16,
		wideWidth:   32,
		bufferSize:  1,
	}
}

// WithEngine sets the engine that ticks the adapter.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithNarrowWidth sets the width in bits of the words on the top side.
func (b Builder) WithNarrowWidth(w int) Builder {
	b.narrowWidth = w
	return b
}

// WithWideWidth sets the width in bits of the words on the bottom side.
func (b Builder) WithWideWidth(w int) Builder {
	b.wideWidth = w
	return b
}

// WithBufferSize sets the incoming buffer size of both ports.
func (b Builder) WithBufferSize(n int) Builder {
	b.bufferSize = n
	return b
}

// Build creates a width adapter and registers it with the engine.
func (b Builder) Build(name string) (*Comp, error) {
	if b.narrowWidth < 8 || b.narrowWidth%8 != 0 ||
		b.wideWidth > 64 || b.wideWidth%b.narrowWidth != 0 {
		return nil, fmt.Errorf("width adapter %s: %w: %d to %d bits",
			name, ErrInvalidRatio, b.narrowWidth, b.wideWidth)
	}

	ratio := b.wideWidth / b.narrowWidth
	if ratio < 2 || ratio&(ratio-1) != 0 {
		return nil, fmt.Errorf("width adapter %s: %w: ratio %d",
			name, ErrInvalidRatio, ratio)
	}

	c := &Comp{
		ComponentBase: modeling.NewComponentBase(name),
		narrowWidth:   b.narrowWidth,
		wideWidth:     b.wideWidth,
		selectBits:    bits.TrailingZeros(uint(ratio)),
		topPort: burstbus.NewPort(
			naming.BuildName(name, "TopPort"), b.bufferSize),
		bottomPort: burstbus.NewPort(
			naming.BuildName(name, "BottomPort"), b.bufferSize),
		lanes: queueing.NewBuffer(
			naming.BuildName(name, "Lanes"), b.bufferSize),
	}

	if b.engine != nil {
		b.engine.RegisterTicker(c)
	}

	return c, nil
}
