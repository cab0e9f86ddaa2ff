package burstbus

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/delaymem/sim/hooking"
	"github.com/sarchlab/delaymem/sim/naming"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
)

// DefaultStallLimit is the number of cycles a beat may wait for its
// acknowledgment before the link reports a stall.
const DefaultStallLimit = 10000

// ErrStall is wrapped by every StallError.
var ErrStall = errors.New("bus stalled")

// ErrOverlap is wrapped by every OverlapError.
var ErrOverlap = errors.New("overlapping transactions")

// StallError reports a beat that has not been acknowledged in time.
type StallError struct {
	Link    string
	Beat    *Beat
	Since   timing.VTimeInCycle
	Elapsed uint64
}

func (e *StallError) Error() string {
	return fmt.Sprintf("%s: beat %s at address %#x not acknowledged for %d cycles",
		e.Link, e.Beat.ID, e.Beat.Address, e.Elapsed)
}

// Unwrap returns ErrStall.
func (e *StallError) Unwrap() error {
	return ErrStall
}

// OverlapError reports a beat of a new transaction that arrived while another
// transaction was still open.
type OverlapError struct {
	Link      string
	OpenTxnID string
	NewTxnID  string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: transaction %s started while %s is open",
		e.Link, e.NewTxnID, e.OpenTxnID)
}

// Unwrap returns ErrOverlap.
func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// LinkStats counts the traffic on a link.
type LinkStats struct {
	Beats                     uint64
	Acks                      uint64
	Transactions              uint64
	MaxConcurrentTransactions int
}

// A Link is a registered point-to-point connection between a master port and
// a target port. Messages sent during a tick reach the other side when the
// link commits at the end of the tick.
type Link struct {
	hooking.HookableBase

	name       string
	stallLimit uint64

	master, target *defaultPort

	outstanding map[string]outstandingBeat
	openTxn     *Beat
	fault       error
	stats       LinkStats
}

type outstandingBeat struct {
	beat *Beat
	age  uint64
}

// LinkBuilder can build links.
type LinkBuilder struct {
	engine     timing.Engine
	stallLimit uint64
}

// MakeLinkBuilder creates a LinkBuilder with the default stall limit.
func MakeLinkBuilder() LinkBuilder {
	return LinkBuilder{
		stallLimit: DefaultStallLimit,
	}
}

// WithEngine sets the engine that commits the link.
func (b LinkBuilder) WithEngine(engine timing.Engine) LinkBuilder {
	b.engine = engine
	return b
}

// WithStallLimit sets the stall limit in cycles. 0 disables the watchdog.
func (b LinkBuilder) WithStallLimit(limit uint64) LinkBuilder {
	b.stallLimit = limit
	return b
}

// Build connects the master port to the target port.
func (b LinkBuilder) Build(name string, master, target Port) *Link {
	naming.NameMustBeValid(name)

	if b.engine == nil {
		log.Panicf("link %s requires an engine", name)
	}

	l := &Link{
		name:        name,
		stallLimit:  b.stallLimit,
		outstanding: make(map[string]outstandingBeat),
	}

	l.master = l.plug(master)
	l.target = l.plug(target)
	l.master.peer = l.target
	l.target.peer = l.master
	l.master.credits = l.target.bufSize
	l.target.credits = l.master.bufSize

	b.engine.RegisterCommitter(l)
	b.engine.RegisterWatcher(l)

	return l
}

func (l *Link) plug(p Port) *defaultPort {
	port, ok := p.(*defaultPort)
	if !ok {
		log.Panicf("link %s cannot plug port %s of type %T",
			l.name, p.Name(), p)
	}

	if port.peer != nil {
		log.Panicf("port %s is already connected", port.name)
	}

	return port
}

// Name returns the name of the link.
func (l *Link) Name() string {
	return l.name
}

// Stats returns the traffic counters.
func (l *Link) Stats() LinkStats {
	return l.stats
}

// Busy tells if a transaction is open on the link.
func (l *Link) Busy() bool {
	return l.openTxn != nil
}

// Waiting tells if a transaction is open or a beat is not acknowledged yet.
func (l *Link) Waiting() bool {
	return l.openTxn != nil || len(l.outstanding) > 0
}

// Commit delivers the messages staged during the tick.
func (l *Link) Commit() bool {
	// Beats are observed before acks so that a master that starts a new
	// transaction early is caught even if the old one ends in this cycle.
	for _, msg := range l.master.staged {
		l.observeBeat(msg)
	}

	for _, msg := range l.target.staged {
		l.observeAck(msg)
	}

	downMoved := l.master.deliver()
	upMoved := l.target.deliver()

	l.age()

	return downMoved || upMoved
}

func (l *Link) observeBeat(msg Msg) {
	beat, ok := msg.(*Beat)
	if !ok {
		log.Panicf("link %s carries %T from master to target", l.name, msg)
	}

	l.stats.Beats++
	l.outstanding[beat.ID] = outstandingBeat{beat: beat}

	if l.openTxn == nil {
		l.openTxn = beat
		l.stats.Transactions++
		l.stats.MaxConcurrentTransactions = max(
			l.stats.MaxConcurrentTransactions, 1)

		what := "read"
		if beat.Write {
			what = "write"
		}

		tracing.StartTask(l.taskID(beat.TxnID), beat.TxnID, l, "bus", what,
			beat)

		return
	}

	if l.openTxn.TxnID != beat.TxnID && l.fault == nil {
		l.stats.MaxConcurrentTransactions = 2
		l.fault = &OverlapError{
			Link:      l.name,
			OpenTxnID: l.openTxn.TxnID,
			NewTxnID:  beat.TxnID,
		}
	}
}

func (l *Link) observeAck(msg Msg) {
	ack, ok := msg.(*Ack)
	if !ok {
		log.Panicf("link %s carries %T from target to master", l.name, msg)
	}

	l.stats.Acks++
	delete(l.outstanding, ack.RespondTo)

	if ack.Last && l.openTxn != nil && l.openTxn.TxnID == ack.TxnID {
		tracing.EndTask(l.taskID(ack.TxnID), l)
		l.openTxn = nil
	}
}

// The same transaction crosses several links, so each link traces it under
// its own task ID.
func (l *Link) taskID(txnID string) string {
	return txnID + "@" + l.name
}

func (l *Link) age() {
	for id, o := range l.outstanding {
		o.age++
		l.outstanding[id] = o
	}
}

// Check reports stalls and overlapping transactions.
func (l *Link) Check(now timing.VTimeInCycle) error {
	if l.fault != nil {
		return l.fault
	}

	if l.stallLimit == 0 {
		return nil
	}

	for _, o := range l.outstanding {
		if o.age > l.stallLimit {
			return &StallError{
				Link:    l.name,
				Beat:    o.beat,
				Since:   now - timing.VTimeInCycle(o.age),
				Elapsed: o.age,
			}
		}
	}

	return nil
}
