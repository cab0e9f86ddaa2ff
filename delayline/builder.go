package delayline

import (
	"errors"
	"fmt"

	"github.com/sarchlab/delaymem/mem/arbiter"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/cache/directmapped"
	"github.com/sarchlab/delaymem/mem/widthadapter"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/sim/timing"
)

// Errors returned by Build.
var (
	ErrLengthNotPowerOfTwo = errors.New("buffer length is not a power of two")
	ErrDelayTooLong        = errors.New("fixed delay does not fit the buffer")
	ErrTooManyTaps         = errors.New("too many taps")
	ErrDynamicTapTriggered = errors.New("write-triggered taps must be fixed")
	ErrInvalidSampleWidth  = errors.New("invalid sample width")
)

type tapConfig struct {
	fixed bool
	delay uint64
}

type psramConfig struct {
	baseAddress uint64
	numLines    int
	burstLen    int
	memWidth    int
}

// A Builder can build delay lines.
type Builder struct {
	engine        timing.Engine
	length        uint64
	sampleWidth   int
	taps          []tapConfig
	writeTriggers bool
	psram         *psramConfig
	zeroFill      *bool
	inputSize     int
	requestSize   int
	outputSize    int
	stallLimit    uint64
}

// MakeBuilder returns a Builder for a locally stored line of 1024 16-bit
// samples with no taps.
func MakeBuilder() Builder {
	return Builder{
		length:      1024,
		sampleWidth: 16,
		inputSize:   4,
		requestSize: 4,
		outputSize:  4,
		stallLimit:  burstbus.DefaultStallLimit,
	}
}

// WithEngine sets the engine that ticks the delay line and its memory stack.
func (b Builder) WithEngine(engine timing.Engine) Builder {
	b.engine = engine
	return b
}

// WithLength sets the number of samples the line holds. It must be a power of
// two.
func (b Builder) WithLength(n uint64) Builder {
	b.length = n
	return b
}

// WithSampleWidth sets the width of a sample in bits.
func (b Builder) WithSampleWidth(w int) Builder {
	b.sampleWidth = w
	return b
}

// WithFixedTap adds a tap that always reads the given delay.
func (b Builder) WithFixedTap(delay uint64) Builder {
	b.taps = append(append([]tapConfig(nil), b.taps...),
		tapConfig{fixed: true, delay: delay})

	return b
}

// WithDynamicTap adds a tap that takes a delay with every request.
func (b Builder) WithDynamicTap() Builder {
	b.taps = append(append([]tapConfig(nil), b.taps...), tapConfig{})
	return b
}

// WithWriteTriggersTaps makes every accepted sample trigger one read on every
// tap. All taps must be fixed.
func (b Builder) WithWriteTriggersTaps() Builder {
	b.writeTriggers = true
	return b
}

// WithPSRAM stores the samples in an external memory starting at the given
// word address. Accesses go through a width adapter and a cache of numLines
// lines of burstLen words, each memWidth bits wide.
func (b Builder) WithPSRAM(
	baseAddress uint64,
	numLines, burstLen, memWidth int,
) Builder {
	b.psram = &psramConfig{
		baseAddress: baseAddress,
		numLines:    numLines,
		burstLen:    burstLen,
		memWidth:    memWidth,
	}

	return b
}

// WithZeroFill sets whether the line clears the buffer before accepting
// traffic. By default only PSRAM-backed lines do.
func (b Builder) WithZeroFill(zeroFill bool) Builder {
	b.zeroFill = &zeroFill
	return b
}

// WithInputSize sets the capacity of the input sample stream.
func (b Builder) WithInputSize(n int) Builder {
	b.inputSize = n
	return b
}

// WithRequestSize sets the number of requests a tap can queue.
func (b Builder) WithRequestSize(n int) Builder {
	b.requestSize = n
	return b
}

// WithOutputSize sets the capacity of every tap's output stream.
func (b Builder) WithOutputSize(n int) Builder {
	b.outputSize = n
	return b
}

// WithStallLimit sets the stall limit of the internal links.
func (b Builder) WithStallLimit(limit uint64) Builder {
	b.stallLimit = limit
	return b
}

func (b Builder) validate() error {
	if b.length < 2 || b.length&(b.length-1) != 0 {
		return fmt.Errorf("%w: %d", ErrLengthNotPowerOfTwo, b.length)
	}

	if b.sampleWidth < 8 || b.sampleWidth > 64 || b.sampleWidth%8 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleWidth, b.sampleWidth)
	}

	if len(b.taps)+1 > arbiter.MaxRequesters {
		return fmt.Errorf("%w: %d", ErrTooManyTaps, len(b.taps))
	}

	for i, t := range b.taps {
		if t.fixed && t.delay >= b.length {
			return fmt.Errorf("%w: tap %d has delay %d, length is %d",
				ErrDelayTooLong, i, t.delay, b.length)
		}

		if b.writeTriggers && !t.fixed {
			return fmt.Errorf("%w: tap %d", ErrDynamicTapTriggered, i)
		}
	}

	return nil
}

// Build creates a delay line together with its private memory stack and
// registers everything with the engine.
func (b Builder) Build(name string) (*Comp, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("delay line %s: %w", name, err)
	}

	if b.engine == nil {
		return nil, fmt.Errorf("delay line %s: no engine", name)
	}

	c := &Comp{
		ComponentBase: modeling.NewComponentBase(name),
		length:        b.length,
		sampleWidth:   b.sampleWidth,
		writeTriggers: b.writeTriggers,
		last:          b.length - 1,
		ready:         true,
		pendingReads:  make(map[uint64]int),
		input: queueing.NewBuffer(
			naming.BuildName(name, "Input"), b.inputSize),
	}

	b.engine.RegisterTicker(c)

	zeroFill := b.psram != nil
	if b.zeroFill != nil {
		zeroFill = *b.zeroFill
	}

	if zeroFill {
		c.ready = false
	}

	if err := b.buildMemoryStack(c, name); err != nil {
		return nil, fmt.Errorf("delay line %s: %w", name, err)
	}

	links := burstbus.MakeLinkBuilder().
		WithEngine(b.engine).
		WithStallLimit(b.stallLimit)

	writerPort := burstbus.NewPort(naming.BuildName(name, "WriterPort"), 1)
	links.Build(naming.BuildName(name, "WriterLink"),
		writerPort, c.arbiter.Up(0))
	c.writer = burstbus.NewMaster(writerPort)

	for i, t := range b.taps {
		port := burstbus.NewPort(
			naming.BuildNameWithIndex(name, "TapPort", i), 1)
		links.Build(naming.BuildNameWithIndex(name, "TapLink", i),
			port, c.arbiter.Up(i+1))

		tap := &Tap{
			line:   c,
			index:  i,
			fixed:  t.fixed,
			delay:  t.delay,
			master: burstbus.NewMaster(port),
		}
		tap.requests = queueing.NewBuffer(
			naming.BuildNameWithIndex(name, "TapRequests", i), b.requestSize)
		tap.output = queueing.NewBuffer(
			naming.BuildNameWithIndex(name, "TapOutput", i), b.outputSize)

		c.taps = append(c.taps, tap)
	}

	return c, nil
}

func (b Builder) buildMemoryStack(c *Comp, name string) error {
	var err error

	c.arbiter, err = arbiter.MakeBuilder().
		WithEngine(b.engine).
		WithNumRequesters(len(b.taps) + 1).
		Build(naming.BuildName(name, "Arbiter"))
	if err != nil {
		return err
	}

	links := burstbus.MakeLinkBuilder().
		WithEngine(b.engine).
		WithStallLimit(b.stallLimit)

	if b.psram == nil {
		c.cache, err = directmapped.MakeBuilder().
			WithEngine(b.engine).
			WithDataWidth(b.sampleWidth).
			WithLUTRAMBacked(b.length).
			Build(naming.BuildName(name, "Cache"))
		if err != nil {
			return err
		}

		c.busLink = links.Build(naming.BuildName(name, "BusLink"),
			c.arbiter.Down(), c.cache.TopPort())

		return nil
	}

	c.cache, err = directmapped.MakeBuilder().
		WithEngine(b.engine).
		WithNumLines(b.psram.numLines).
		WithBurstLen(b.psram.burstLen).
		WithDataWidth(b.psram.memWidth).
		WithBaseAddress(b.psram.baseAddress).
		Build(naming.BuildName(name, "Cache"))
	if err != nil {
		return err
	}

	if b.psram.memWidth == b.sampleWidth {
		c.busLink = links.Build(naming.BuildName(name, "BusLink"),
			c.arbiter.Down(), c.cache.TopPort())

		return nil
	}

	c.adapter, err = widthadapter.MakeBuilder().
		WithEngine(b.engine).
		WithNarrowWidth(b.sampleWidth).
		WithWideWidth(b.psram.memWidth).
		Build(naming.BuildName(name, "Adapter"))
	if err != nil {
		return err
	}

	c.busLink = links.Build(naming.BuildName(name, "BusLink"),
		c.arbiter.Down(), c.adapter.TopPort())
	links.Build(naming.BuildName(name, "CacheLink"),
		c.adapter.BottomPort(), c.cache.TopPort())

	return nil
}
