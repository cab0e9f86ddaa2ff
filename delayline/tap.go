package delayline

import (
	"log"

	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/sim/queueing"
)

// A request is bound to a buffer address when it is accepted, so later writes
// do not change which sample it returns.
type request struct {
	address      uint64
	shortCircuit bool
	value        burstbus.Word
}

// A Tap reads samples from a delay line. Its outputs leave in the order its
// requests were accepted.
type Tap struct {
	line  *Comp
	index int
	fixed bool
	delay uint64

	master   *burstbus.Master
	requests queueing.Buffer
	output   queueing.Buffer
	current  *request
}

// Index returns the position of the tap in its delay line.
func (t *Tap) Index() int {
	return t.index
}

// Fixed tells if the tap always reads the same delay.
func (t *Tap) Fixed() bool {
	return t.fixed
}

// Delay returns the delay of a fixed tap.
func (t *Tap) Delay() uint64 {
	return t.delay
}

// Output returns the stream of samples read by the tap.
func (t *Tap) Output() queueing.Buffer {
	return t.output
}

// CanRequest tells if a request would be accepted now. Nothing is accepted
// before the zero-fill pass completes.
func (t *Tap) CanRequest() bool {
	return t.line.ready && t.requests.CanPush()
}

// Trigger requests one read at the fixed delay of the tap.
func (t *Tap) Trigger() bool {
	if !t.fixed {
		log.Panicf("%s: tap %d has no fixed delay", t.line.Name(), t.index)
	}

	if !t.CanRequest() {
		return false
	}

	t.bind(t.delay)

	return true
}

// Request asks a dynamic tap for the sample written delay samples before the
// most recent one. Delays of the buffer length or more wrap around.
func (t *Tap) Request(delay uint64) bool {
	if t.fixed {
		log.Panicf("%s: tap %d has a fixed delay", t.line.Name(), t.index)
	}

	if !t.CanRequest() {
		return false
	}

	t.bind(delay)

	return true
}

func (t *Tap) bind(delay uint64) {
	l := t.line

	if delay%l.length == 0 {
		t.requests.Push(&request{shortCircuit: true, value: l.lastValue})
		return
	}

	addr := l.readAddress(delay)
	l.pendingReads[addr]++
	t.requests.Push(&request{address: addr})
}

func (t *Tap) tick() bool {
	madeProgress := false

	if t.current != nil {
		done, progress := t.master.Tick()
		madeProgress = progress

		if done == nil {
			return madeProgress
		}

		t.finish(done.Data[0])
	}

	return t.issue() || madeProgress
}

func (t *Tap) finish(data burstbus.Word) {
	l := t.line

	l.pendingReads[t.current.address]--
	if l.pendingReads[t.current.address] == 0 {
		delete(l.pendingReads, t.current.address)
	}

	t.output.Push(data & burstbus.DataMask(l.sampleWidth))
	l.stats.SamplesReturned++
	t.current = nil
}

func (t *Tap) issue() bool {
	if !t.output.CanPush() {
		return false
	}

	item := t.requests.Pop()
	if item == nil {
		return false
	}

	req := item.(*request)
	l := t.line

	if req.shortCircuit {
		t.output.Push(req.value)
		l.stats.ShortCircuits++
		l.stats.SamplesReturned++

		return true
	}

	t.current = req
	t.master.Start(burstbus.NewReadTransaction(req.address, 1))
	t.master.Tick()
	l.stats.ReadsIssued++

	return true
}
