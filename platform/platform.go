// Package platform assembles a complete delay-line memory system from a
// configuration.
//
// Every delay line keeps its private arbiter and cache. Only the last hop,
// from the caches to the backing store, is shared through a system arbiter.
package platform

import (
	"github.com/sarchlab/delaymem/config"
	"github.com/sarchlab/delaymem/datarecording"
	"github.com/sarchlab/delaymem/delayline"
	"github.com/sarchlab/delaymem/mem/arbiter"
	"github.com/sarchlab/delaymem/mem/backingstore"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
)

// Platform is a built system.
type Platform struct {
	Config     *config.Config
	Clock      *timing.Clock
	Store      *backingstore.Comp
	Arbiter    *arbiter.Comp
	DelayLines []*delayline.Comp

	// MemoryLink is the link that carries all traffic into the store.
	MemoryLink *burstbus.Link

	dbTracer *tracing.DBTracer
}

// A Builder can build platforms.
type Builder struct {
	cfg      *config.Config
	tracers  []tracing.Tracer
	recorder datarecording.DataRecorder
}

// MakeBuilder returns a Builder for the default configuration.
func MakeBuilder() Builder {
	return Builder{cfg: config.Default()}
}

// WithConfig sets the system description.
func (b Builder) WithConfig(cfg *config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithTracer attaches a tracer to the memory link and to every delay line's
// bus link.
func (b Builder) WithTracer(t tracing.Tracer) Builder {
	b.tracers = append(append([]tracing.Tracer(nil), b.tracers...), t)
	return b
}

// WithRecorder stores every completed bus transaction in the recorder.
func (b Builder) WithRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// Build validates the configuration and creates the platform.
func (b Builder) Build() (*Platform, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		Config: b.cfg,
		Clock:  timing.NewClock(),
	}

	var err error

	storeBuilder := backingstore.MakeBuilder().
		WithEngine(p.Clock).
		WithBusParams(b.cfg.Memory.BusParams()).
		WithLatency(b.cfg.Memory.Latency)
	if b.cfg.Memory.RandomSeed != 0 {
		storeBuilder = storeBuilder.WithRandomInit(b.cfg.Memory.RandomSeed)
	}

	p.Store, err = storeBuilder.Build("Memory")
	if err != nil {
		return nil, err
	}

	for _, d := range b.cfg.DelayLines {
		line, err := b.delayLineBuilder(p.Clock, d).Build(d.Name)
		if err != nil {
			return nil, err
		}

		p.DelayLines = append(p.DelayLines, line)
	}

	if err := b.connectMemory(p); err != nil {
		return nil, err
	}

	b.attachTracers(p)

	return p, nil
}

func (b Builder) delayLineBuilder(
	engine timing.Engine,
	d config.DelayLineConfig,
) delayline.Builder {
	lb := delayline.MakeBuilder().
		WithEngine(engine).
		WithLength(d.Length).
		WithSampleWidth(d.SampleWidth).
		WithStallLimit(b.cfg.StallLimit)

	for _, t := range d.Taps {
		if t.Dynamic {
			lb = lb.WithDynamicTap()
		} else {
			lb = lb.WithFixedTap(t.Delay)
		}
	}

	if d.WriteTriggersTaps {
		lb = lb.WithWriteTriggersTaps()
	}

	if d.PSRAM() {
		lb = lb.WithPSRAM(d.BaseAddress, d.CacheLines,
			b.cfg.Memory.BurstLen, b.cfg.Memory.DataWidth)
	}

	if d.ZeroFill != nil {
		lb = lb.WithZeroFill(*d.ZeroFill)
	}

	return lb
}

func (b Builder) connectMemory(p *Platform) error {
	var bottoms []burstbus.Port
	for _, line := range p.DelayLines {
		if port := line.BottomPort(); port != nil {
			bottoms = append(bottoms, port)
		}
	}

	if len(bottoms) == 0 {
		return nil
	}

	links := burstbus.MakeLinkBuilder().
		WithEngine(p.Clock).
		WithStallLimit(b.cfg.StallLimit)

	var err error

	p.Arbiter, err = arbiter.MakeBuilder().
		WithEngine(p.Clock).
		WithNumRequesters(len(bottoms)).
		Build("MemoryArbiter")
	if err != nil {
		return err
	}

	for i, port := range bottoms {
		links.Build(naming.BuildNameWithIndex("MemoryArbiter", "Link", i),
			port, p.Arbiter.Up(i))
	}

	p.MemoryLink = links.Build("MemoryLink", p.Arbiter.Down(), p.Store.TopPort())

	return nil
}

func (b Builder) attachTracers(p *Platform) {
	tracers := b.tracers

	if b.recorder != nil {
		p.dbTracer = tracing.NewDBTracer(p.Clock, b.recorder)
		tracers = append(tracers, p.dbTracer)
	}

	for _, t := range tracers {
		if p.MemoryLink != nil {
			tracing.CollectTrace(p.MemoryLink, t)
		}

		for _, line := range p.DelayLines {
			tracing.CollectTrace(line.BusLink(), t)
			tracing.CollectTrace(line, t)
		}
	}
}

// Components returns every ticking component of the platform.
func (p *Platform) Components() []modeling.Component {
	var comps []modeling.Component

	for _, line := range p.DelayLines {
		comps = append(comps, line, line.Arbiter())

		if a := line.Adapter(); a != nil {
			comps = append(comps, a)
		}

		comps = append(comps, line.Cache())
	}

	if p.Arbiter != nil {
		comps = append(comps, p.Arbiter)
	}

	return append(comps, p.Store)
}

// Buffers returns the sample input and the tap outputs of every delay line.
func (p *Platform) Buffers() []queueing.Buffer {
	var bufs []queueing.Buffer

	for _, line := range p.DelayLines {
		bufs = append(bufs, line.Input())

		for i := 0; i < line.NumTaps(); i++ {
			bufs = append(bufs, line.Tap(i).Output())
		}
	}

	return bufs
}

// DelayLine returns the delay line with the given name, or nil.
func (p *Platform) DelayLine(name string) *delayline.Comp {
	for _, line := range p.DelayLines {
		if line.Name() == name {
			return line
		}
	}

	return nil
}

// Terminate flushes recorded traces.
func (p *Platform) Terminate() {
	if p.dbTracer != nil {
		p.dbTracer.Terminate()
	}
}
