// Package arbiter lets several BurstBus masters share one target.
//
// Grants are whole transactions: once a master is granted, every beat of its
// transaction is forwarded until the target acknowledges the final beat. The
// next grant goes to the first requester after the previous holder in
// round-robin order.
package arbiter

import (
	"log"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/modeling"
	"github.com/sarchlab/delaymem/tracing"
)

// Comp is a round-robin arbiter.
type Comp struct {
	*modeling.ComponentBase

	ups  []burstbus.Port
	down burstbus.Port

	holder     int
	lastHolder int
	grants     []uint64
}

// Up returns the port that requester i connects to.
func (c *Comp) Up(i int) burstbus.Port {
	return c.ups[i]
}

// Down returns the port that connects to the shared target.
func (c *Comp) Down() burstbus.Port {
	return c.down
}

// NumRequesters returns the number of masters.
func (c *Comp) NumRequesters() int {
	return len(c.ups)
}

// Holder returns the requester that owns the target, or -1 when idle.
func (c *Comp) Holder() int {
	return c.holder
}

// Pending returns a bit mask of the requesters with a beat waiting.
func (c *Comp) Pending() uint64 {
	var pending uint64

	for i, p := range c.ups {
		if p.PeekIncoming() != nil {
			pending |= 1 << i
		}
	}

	return pending
}

// Grants returns the number of grants given to each requester.
func (c *Comp) Grants() []uint64 {
	return append([]uint64(nil), c.grants...)
}

// Tick forwards acknowledgments up, grants the target if it is free, and
// forwards the holder's beat down.
func (c *Comp) Tick() bool {
	madeProgress := false

	madeProgress = c.forwardAck() || madeProgress
	madeProgress = c.grant() || madeProgress
	madeProgress = c.forwardBeat() || madeProgress

	return madeProgress
}

func (c *Comp) forwardAck() bool {
	msg := c.down.PeekIncoming()
	if msg == nil {
		return false
	}

	if c.holder < 0 {
		log.Panicf("%s: acknowledgment without a holder", c.Name())
	}

	up := c.ups[c.holder]
	if !up.CanSend() {
		return false
	}

	ack := msg.(*burstbus.Ack)
	c.down.RetrieveIncoming()

	if err := up.Send(ack); err != nil {
		log.Panic(err)
	}

	if ack.Last {
		c.lastHolder = c.holder
		c.holder = -1
	}

	return true
}

func (c *Comp) grant() bool {
	if c.holder >= 0 {
		return false
	}

	n := len(c.ups)
	for k := 1; k <= n; k++ {
		i := (c.lastHolder + k) % n

		msg := c.ups[i].PeekIncoming()
		if msg == nil {
			continue
		}

		c.holder = i
		c.grants[i]++

		tracing.AddTaskStep(msg.(*burstbus.Beat).TxnID, c, "granted")

		return true
	}

	return false
}

func (c *Comp) forwardBeat() bool {
	if c.holder < 0 || !c.down.CanSend() {
		return false
	}

	msg := c.ups[c.holder].RetrieveIncoming()
	if msg == nil {
		return false
	}

	if err := c.down.Send(msg); err != nil {
		log.Panic(err)
	}

	return true
}
