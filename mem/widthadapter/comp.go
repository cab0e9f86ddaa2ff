// Package widthadapter packs narrow words into the wider words of a backing
// store.
//
// The low address bits of a narrow address select a lane of the wide word.
// Writes shift data and mask into the lane. Reads shift the lane back down.
package widthadapter

import (
	"log"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/sim/queueing"
)

// Comp is a width adapter. It only forwards classic beats.
type Comp struct {
	*modeling.ComponentBase

	topPort    burstbus.Port
	bottomPort burstbus.Port

	narrowWidth int
	wideWidth   int
	selectBits  int

	// The lane of every beat sent down and not acknowledged yet.
	lanes queueing.Buffer
}

// TopPort returns the narrow side, which receives beats.
func (c *Comp) TopPort() burstbus.Port {
	return c.topPort
}

// BottomPort returns the wide side, which sends beats.
func (c *Comp) BottomPort() burstbus.Port {
	return c.bottomPort
}

// Tick forwards one acknowledgment up and one beat down.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.forwardAck() || madeProgress
	madeProgress = c.forwardBeat() || madeProgress

	return madeProgress
}

func (c *Comp) forwardBeat() bool {
	msg := c.topPort.PeekIncoming()
	if msg == nil || !c.lanes.CanPush() || !c.bottomPort.CanSend() {
		return false
	}

	beat := msg.(*burstbus.Beat)
	if beat.CTI != burstbus.Classic {
		log.Panicf("%s: bursts are not supported, got %s at %#x",
			c.Name(), beat.CTI, beat.Address)
	}

	lane := int(beat.Address & (1<<c.selectBits - 1))
	shift := lane * c.narrowWidth
	narrowMask := burstbus.FullMask(c.narrowWidth / 8)

	b := burstbus.BeatBuilder{}.
		WithTxnID(beat.TxnID).
		WithAddress(beat.Address >> c.selectBits).
		WithCycleType(burstbus.Classic)

	if beat.Write {
		data := beat.Data & burstbus.DataMask(c.narrowWidth)
		mask := beat.Mask & narrowMask

		b = b.AsWrite().
			WithData(data << shift).
			WithMask(mask << (shift / 8))
	}

	c.topPort.RetrieveIncoming()
	c.lanes.Push(pendingBeat{beat: beat, lane: lane})

	if err := c.bottomPort.Send(b.Build()); err != nil {
		log.Panic(err)
	}

	return true
}

func (c *Comp) forwardAck() bool {
	msg := c.bottomPort.PeekIncoming()
	if msg == nil || !c.topPort.CanSend() {
		return false
	}

	ack := msg.(*burstbus.Ack)
	pending := c.lanes.Pop().(pendingBeat)
	c.bottomPort.RetrieveIncoming()

	data := (ack.Data >> (pending.lane * c.narrowWidth)) &
		burstbus.DataMask(c.narrowWidth)

	up := burstbus.AckBuilder{}.WithBeat(pending.beat).WithData(data).Build()
	if err := c.topPort.Send(up); err != nil {
		log.Panic(err)
	}

	return true
}

type pendingBeat struct {
	beat *burstbus.Beat
	lane int
}
