// Package directmapped provides a direct-mapped, write-back cache that sits
// between one requester and a burst-oriented backing store.
//
// Every line holds burstLen consecutive words. Misses refill a whole line with
// one burst read. A dirty line is written back with one burst write before it
// is replaced, and the cache idles for a few cycles between the write-back and
// the refill so that the two bursts never run back to back.
package directmapped

import (
	"fmt"
	"log"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/tracing"
)

type state int

const (
	stateIdle state = iota
	stateTestHit
	stateEvict
	stateWait
	stateRefill
	stateLocalAccess
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateTestHit:
		return "TestHit"
	case stateEvict:
		return "Evict"
	case stateWait:
		return "Wait"
	case stateRefill:
		return "Refill"
	case stateLocalAccess:
		return "LocalAccess"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// A Line is the tag store entry of one cache line.
type Line struct {
	Tag   uint64
	Valid bool
	Dirty bool
}

// Stats counts the work done by a cache.
type Stats struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Refills   uint64
}

// Comp is a direct-mapped write-back cache.
type Comp struct {
	*modeling.ComponentBase

	topPort    burstbus.Port
	bottomPort burstbus.Port
	master     *burstbus.Master

	numLines    uint64
	burstLen    uint64
	dataWidth   int
	waitCycles  int
	baseAddress uint64

	lines []Line
	data  []burstbus.Word

	lutramBacked bool
	local        []burstbus.Word

	state     state
	req       *burstbus.Beat
	missed    bool
	countdown int
	stats     Stats
}

// TopPort returns the requester-facing port.
func (c *Comp) TopPort() burstbus.Port {
	return c.topPort
}

// BottomPort returns the port that issues bursts to the backing store. It is
// nil for a LUTRAM-backed cache.
func (c *Comp) BottomPort() burstbus.Port {
	return c.bottomPort
}

// Stats returns the counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Lines returns a copy of the tag store.
func (c *Comp) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

// State returns the name of the current state.
func (c *Comp) State() string {
	return c.state.String()
}

// decompose splits a word address into the tag, the line index, and the word
// offset within the line.
func (c *Comp) decompose(addr uint64) (tag, line, offset uint64) {
	offset = addr % c.burstLen
	line = (addr / c.burstLen) % c.numLines
	tag = addr / (c.burstLen * c.numLines)

	return tag, line, offset
}

func (c *Comp) lineAddress(tag, line uint64) uint64 {
	return c.baseAddress + (tag*c.numLines+line)*c.burstLen
}

// Tick advances the state machine by one step.
func (c *Comp) Tick() bool {
	switch c.state {
	case stateIdle:
		return c.takeRequest()
	case stateTestHit:
		return c.testHit()
	case stateEvict:
		return c.evict()
	case stateWait:
		return c.wait()
	case stateRefill:
		return c.refill()
	case stateLocalAccess:
		return c.localAccess()
	default:
		log.Panicf("%s: unknown state %s", c.Name(), c.state)
	}

	return false
}

func (c *Comp) takeRequest() bool {
	msg := c.topPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	c.req = msg.(*burstbus.Beat)
	c.missed = false

	what := "read"
	if c.req.Write {
		what = "write"
		c.stats.Writes++
	} else {
		c.stats.Reads++
	}

	tracing.StartTask(c.req.ID, c.req.TxnID, c, "cache", what, c.req)

	if c.lutramBacked {
		c.state = stateLocalAccess
		return true
	}

	c.state = stateTestHit
	c.testHit()

	return true
}

func (c *Comp) testHit() bool {
	tag, line, offset := c.decompose(c.req.Address)
	l := &c.lines[line]

	if l.Valid && l.Tag == tag {
		return c.serveHit(line*c.burstLen + offset)
	}

	c.stats.Misses++
	c.missed = true
	tracing.AddTaskStep(c.req.ID, c, "miss")

	if l.Valid && l.Dirty {
		c.startEviction(line)
		return true
	}

	c.startRefill(tag, line)

	return true
}

func (c *Comp) serveHit(index uint64) bool {
	if !c.topPort.CanSend() {
		return false
	}

	if !c.missed {
		c.stats.Hits++
	}

	_, line, _ := c.decompose(c.req.Address)
	c.data[index] = c.access(c.data[index])

	if c.req.Write {
		c.lines[line].Dirty = true
	}

	c.respond(c.data[index])

	return true
}

// access applies the current request to a word and returns the new value.
func (c *Comp) access(old burstbus.Word) burstbus.Word {
	if !c.req.Write {
		return old
	}

	return burstbus.MergeLanes(old, c.req.Data, c.req.Mask, 8) &
		burstbus.DataMask(c.dataWidth)
}

func (c *Comp) respond(data burstbus.Word) {
	ack := burstbus.AckBuilder{}.WithBeat(c.req).WithData(data).Build()
	if err := c.topPort.Send(ack); err != nil {
		log.Panic(err)
	}

	tracing.EndTask(c.req.ID, c)

	c.req = nil
	c.state = stateIdle
}

func (c *Comp) startEviction(line uint64) {
	start := line * c.burstLen
	words := c.data[start : start+c.burstLen]

	c.master.Start(burstbus.NewWriteTransaction(
		c.lineAddress(c.lines[line].Tag, line),
		words,
		burstbus.FullMask(c.dataWidth/8),
	))

	c.stats.Evictions++
	tracing.AddTaskStep(c.req.ID, c, "evict")

	c.state = stateEvict
}

func (c *Comp) evict() bool {
	done, progress := c.master.Tick()
	if done == nil {
		return progress
	}

	_, line, _ := c.decompose(c.req.Address)
	c.lines[line].Dirty = false

	c.countdown = c.waitCycles
	c.state = stateWait

	return true
}

func (c *Comp) wait() bool {
	if c.countdown > 0 {
		c.countdown--
		return true
	}

	tag, line, _ := c.decompose(c.req.Address)
	c.startRefill(tag, line)

	return true
}

func (c *Comp) startRefill(tag, line uint64) {
	c.master.Start(burstbus.NewReadTransaction(
		c.lineAddress(tag, line), int(c.burstLen)))

	c.stats.Refills++
	tracing.AddTaskStep(c.req.ID, c, "refill")

	c.state = stateRefill
}

func (c *Comp) refill() bool {
	done, progress := c.master.Tick()
	if done == nil {
		return progress
	}

	tag, line, _ := c.decompose(c.req.Address)
	start := line * c.burstLen
	copy(c.data[start:start+c.burstLen], done.Data)

	c.lines[line] = Line{Tag: tag, Valid: true, Dirty: false}
	c.state = stateTestHit

	return true
}

func (c *Comp) localAccess() bool {
	if !c.topPort.CanSend() {
		return false
	}

	addr := c.req.Address
	if addr >= uint64(len(c.local)) {
		log.Panicf("%s: address %#x beyond local capacity %d",
			c.Name(), addr, len(c.local))
	}

	c.stats.Hits++
	c.local[addr] = c.access(c.local[addr])
	c.respond(c.local[addr])

	return true
}
