package burstbus

import (
	"log"

	"github.com/sarchlab/delaymem/sim/id"
)

// A Transaction is a complete bus operation: either one classic beat or a
// burst of BurstLen beats at consecutive addresses.
type Transaction struct {
	ID       string
	Write    bool
	Address  uint64
	Mask     ByteMask
	BurstLen int

	// Data holds the words to write, or receives the words read.
	Data []Word
}

// NewReadTransaction creates a read of burstLen words starting at address.
func NewReadTransaction(address uint64, burstLen int) *Transaction {
	if burstLen <= 0 {
		log.Panicf("burst length %d must be positive", burstLen)
	}

	return &Transaction{
		ID:       id.Generate(),
		Address:  address,
		BurstLen: burstLen,
		Data:     make([]Word, burstLen),
	}
}

// NewWriteTransaction creates a write of the given words starting at address.
// Every beat uses the same lane mask.
func NewWriteTransaction(
	address uint64,
	data []Word,
	mask ByteMask,
) *Transaction {
	if len(data) == 0 {
		log.Panic("write transaction without data")
	}

	return &Transaction{
		ID:       id.Generate(),
		Write:    true,
		Address:  address,
		Mask:     mask,
		BurstLen: len(data),
		Data:     append([]Word(nil), data...),
	}
}

func (t *Transaction) cycleType(beat int) CycleType {
	switch {
	case t.BurstLen == 1:
		return Classic
	case beat == t.BurstLen-1:
		return EndOfBurst
	default:
		return IncrementingBurst
	}
}

// A Master drives transactions on a port. It keeps at most one beat
// outstanding and never starts a transaction before the previous one has
// completed.
type Master struct {
	port Port

	txn      *Transaction
	nextBeat int
	waiting  *Beat
}

// NewMaster creates a master that drives the given port.
func NewMaster(port Port) *Master {
	return &Master{port: port}
}

// Port returns the port the master drives.
func (m *Master) Port() Port {
	return m.port
}

// Busy tells if a transaction is in progress.
func (m *Master) Busy() bool {
	return m.txn != nil
}

// Start begins a transaction. The first beat is sent on the next Tick.
func (m *Master) Start(txn *Transaction) {
	if m.txn != nil {
		log.Panicf("master on %s is already running transaction %s",
			m.port.Name(), m.txn.ID)
	}

	m.txn = txn
	m.nextBeat = 0
	m.waiting = nil
}

// Tick consumes at most one acknowledgment and sends at most one beat. When
// the final beat is acknowledged the transaction is returned, exactly once.
func (m *Master) Tick() (completed *Transaction, madeProgress bool) {
	if m.txn == nil {
		return nil, false
	}

	if m.waiting != nil {
		if !m.receiveAck() {
			return nil, false
		}

		madeProgress = true

		if m.nextBeat == m.txn.BurstLen {
			done := m.txn
			m.txn = nil

			return done, true
		}
	}

	return nil, m.sendBeat() || madeProgress
}

func (m *Master) receiveAck() bool {
	msg := m.port.PeekIncoming()
	if msg == nil {
		return false
	}

	ack, ok := msg.(*Ack)
	if !ok || ack.RespondTo != m.waiting.ID {
		log.Panicf("master on %s received unexpected %T", m.port.Name(), msg)
	}

	m.port.RetrieveIncoming()

	if !m.txn.Write {
		m.txn.Data[m.nextBeat-1] = ack.Data
	}

	m.waiting = nil

	return true
}

func (m *Master) sendBeat() bool {
	if !m.port.CanSend() {
		return false
	}

	i := m.nextBeat
	b := BeatBuilder{}.
		WithTxnID(m.txn.ID).
		WithAddress(m.txn.Address + uint64(i)).
		WithCycleType(m.txn.cycleType(i)).
		WithBurstLen(m.txn.BurstLen)

	if m.txn.Write {
		b = b.AsWrite().WithData(m.txn.Data[i]).WithMask(m.txn.Mask)
	}

	beat := b.Build()

	err := m.port.Send(beat)
	if err != nil {
		log.Panicf("master on %s failed to send: %v", m.port.Name(), err)
	}

	m.waiting = beat
	m.nextBeat++

	return true
}
