// Package delayline provides a circular sample buffer with one writer and
// many reading taps.
//
// The writer stores every accepted sample at the write pointer and advances
// the pointer modulo the buffer length. A tap turns a delay d into a read of
// the sample written d samples before the most recent one. The writer and the
// taps reach memory through a private round-robin arbiter, followed by either
// a width adapter and a cache in front of an external memory, or a cache
// backed by local storage.
package delayline

import (
	"github.com/sarchlab/delaymem/mem/arbiter"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/cache/directmapped"
	"github.com/sarchlab/delaymem/mem/widthadapter"
	"github.com/sarchlab/delaymem/sim/id"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/tracing"
)

// Stats counts the work done by a delay line.
type Stats struct {
	SamplesWritten  uint64
	ZeroFillWrites  uint64
	ReadsIssued     uint64
	ShortCircuits   uint64
	HazardStalls    uint64
	TriggerStalls   uint64
	SamplesReturned uint64
}

// Comp is a delay line.
type Comp struct {
	*modeling.ComponentBase

	length        uint64
	sampleWidth   int
	writeTriggers bool

	input  queueing.Buffer
	writer *burstbus.Master
	taps   []*Tap

	arbiter *arbiter.Comp
	adapter *widthadapter.Comp
	cache   *directmapped.Comp
	busLink *burstbus.Link

	// last is the address of the most recently accepted sample.
	last      uint64
	lastValue burstbus.Word

	ready      bool
	fillAddr   uint64
	fillTaskID string

	// pendingReads counts the bound tap reads per buffer address. The writer
	// must not overwrite an address that still has readers.
	pendingReads map[uint64]int

	stats Stats
}

// Input returns the stream that carries samples into the line.
func (c *Comp) Input() queueing.Buffer {
	return c.input
}

// Tap returns tap i.
func (c *Comp) Tap(i int) *Tap {
	return c.taps[i]
}

// NumTaps returns the number of taps.
func (c *Comp) NumTaps() int {
	return len(c.taps)
}

// Length returns the number of samples the line holds.
func (c *Comp) Length() uint64 {
	return c.length
}

// Ready tells if the zero-fill pass, if any, has completed.
func (c *Comp) Ready() bool {
	return c.ready
}

// WritePointer returns the address the next sample will be stored at.
func (c *Comp) WritePointer() uint64 {
	return (c.last + 1) % c.length
}

// BottomPort returns the port to the external memory. It is nil when the
// samples are stored locally.
func (c *Comp) BottomPort() burstbus.Port {
	return c.cache.BottomPort()
}

// Arbiter returns the private arbiter.
func (c *Comp) Arbiter() *arbiter.Comp {
	return c.arbiter
}

// Adapter returns the private width adapter. It is nil when no adaptation is
// needed.
func (c *Comp) Adapter() *widthadapter.Comp {
	return c.adapter
}

// Cache returns the private cache.
func (c *Comp) Cache() *directmapped.Comp {
	return c.cache
}

// BusLink returns the link behind the private arbiter.
func (c *Comp) BusLink() *burstbus.Link {
	return c.busLink
}

// Stats returns the counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Tick advances the writer and every tap by one cycle.
func (c *Comp) Tick() bool {
	madeProgress := c.tickWriter()

	for _, t := range c.taps {
		madeProgress = t.tick() || madeProgress
	}

	return madeProgress
}

func (c *Comp) tickWriter() bool {
	madeProgress := false

	if c.writer.Busy() {
		done, progress := c.writer.Tick()
		madeProgress = progress

		if done == nil {
			return madeProgress
		}

		c.finishWrite()
	}

	if !c.ready {
		return c.startZeroFill() || madeProgress
	}

	return c.acceptSample() || madeProgress
}

func (c *Comp) finishWrite() {
	if c.ready {
		return
	}

	c.fillAddr++
	if c.fillAddr == c.length {
		c.ready = true
		tracing.EndTask(c.fillTaskID, c)
	}
}

func (c *Comp) startZeroFill() bool {
	if c.fillAddr == 0 {
		c.fillTaskID = id.Generate()
		tracing.StartTask(c.fillTaskID, "", c, "delayline", "zero fill", nil)
	}

	c.startWrite(c.fillAddr, 0)
	c.stats.ZeroFillWrites++

	return true
}

func (c *Comp) acceptSample() bool {
	item := c.input.Peek()
	if item == nil {
		return false
	}

	wp := c.WritePointer()
	if c.pendingReads[wp] > 0 {
		c.stats.HazardStalls++
		return false
	}

	if c.writeTriggers && !c.allTapsCanTakeRequest() {
		c.stats.TriggerStalls++
		return false
	}

	c.input.Pop()

	sample := item.(burstbus.Word) & burstbus.DataMask(c.sampleWidth)
	c.last = wp
	c.lastValue = sample
	c.stats.SamplesWritten++

	c.startWrite(wp, sample)

	if c.writeTriggers {
		for _, t := range c.taps {
			t.bind(t.delay)
		}
	}

	return true
}

func (c *Comp) allTapsCanTakeRequest() bool {
	for _, t := range c.taps {
		if !t.requests.CanPush() {
			return false
		}
	}

	return true
}

func (c *Comp) startWrite(addr uint64, sample burstbus.Word) {
	c.writer.Start(burstbus.NewWriteTransaction(
		addr,
		[]burstbus.Word{sample},
		burstbus.FullMask(c.sampleWidth/8),
	))

	c.writer.Tick()
}

// readAddress is the address of the sample written delay samples before the
// most recent one.
func (c *Comp) readAddress(delay uint64) uint64 {
	return (c.last + c.length - delay%c.length) % c.length
}
