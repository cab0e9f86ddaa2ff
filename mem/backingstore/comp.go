// Package backingstore provides an ideal memory controller that serves a
// BurstBus.
package backingstore

import (
	"log"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/storage"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/tracing"
)

// Stats counts the work done by a backing store.
type Stats struct {
	ClassicReads  uint64
	ClassicWrites uint64
	BurstReads    uint64
	BurstWrites   uint64
	Beats         uint64
	StallCycles   uint64
}

// Comp is an ideal memory controller. It serves one beat at a time and
// acknowledges each beat a fixed number of cycles after it arrives.
type Comp struct {
	*modeling.ComponentBase

	topPort burstbus.Port
	params  burstbus.Params
	latency int
	storage *storage.Storage

	countdown   int
	counting    bool
	stalled     bool
	inBurst     bool
	nextAddress uint64

	stats Stats
}

// TopPort returns the port that receives beats.
func (c *Comp) TopPort() burstbus.Port {
	return c.topPort
}

// Storage returns the contents of the store.
func (c *Comp) Storage() *storage.Storage {
	return c.storage
}

// Stats returns the counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// Stall makes the store stop acknowledging beats until Resume is called.
func (c *Comp) Stall() {
	c.stalled = true
}

// Resume ends a stall.
func (c *Comp) Resume() {
	c.stalled = false
}

// Tick serves the beat at the head of the top port.
func (c *Comp) Tick() bool {
	msg := c.topPort.PeekIncoming()
	if msg == nil {
		return false
	}

	if c.stalled {
		c.stats.StallCycles++
		return false
	}

	beat := msg.(*burstbus.Beat)

	if !c.counting {
		c.counting = true
		c.countdown = c.latency
	}

	if c.countdown > 0 {
		c.countdown--
		return true
	}

	if !c.topPort.CanSend() {
		return false
	}

	c.serve(beat)

	return true
}

func (c *Comp) serve(beat *burstbus.Beat) {
	c.trackBurst(beat)

	address := beat.Address & c.params.AddressMask()
	laneBits := 8 * c.params.GranularityBytes

	ackBuilder := burstbus.AckBuilder{}.WithBeat(beat)

	if beat.Write {
		err := c.storage.Write(address, beat.Data, beat.Mask, laneBits)
		if err != nil {
			log.Panic(err)
		}
	} else {
		data, err := c.storage.Read(address)
		if err != nil {
			log.Panic(err)
		}

		ackBuilder = ackBuilder.WithData(data)
	}

	c.topPort.RetrieveIncoming()

	if err := c.topPort.Send(ackBuilder.Build()); err != nil {
		log.Panic(err)
	}

	c.counting = false
	c.stats.Beats++

	tracing.AddTaskStep(beat.TxnID, c, "beat served")
}

func (c *Comp) trackBurst(beat *burstbus.Beat) {
	switch {
	case c.inBurst && beat.CTI == burstbus.Classic:
		log.Panicf("%s: classic beat at %#x inside a burst",
			c.Name(), beat.Address)
	case c.inBurst && beat.Address != c.nextAddress:
		log.Panicf("%s: burst expected address %#x, got %#x",
			c.Name(), c.nextAddress, beat.Address)
	case !c.inBurst:
		c.countTransaction(beat)
	}

	c.inBurst = beat.CTI == burstbus.IncrementingBurst
	c.nextAddress = beat.Address + 1
}

func (c *Comp) countTransaction(beat *burstbus.Beat) {
	burst := beat.CTI != burstbus.Classic

	switch {
	case burst && beat.Write:
		c.stats.BurstWrites++
	case burst:
		c.stats.BurstReads++
	case beat.Write:
		c.stats.ClassicWrites++
	default:
		c.stats.ClassicReads++
	}
}
