// Package burstbus defines the request/response protocol shared by every
// component of the memory subsystem.
//
// A master drives a transaction one beat at a time and waits for the target to
// acknowledge each beat. A transaction is either a single classic beat or a
// fixed-length incrementing burst whose final beat is marked EndOfBurst.
package burstbus

import (
	"fmt"

	"github.com/sarchlab/delaymem/sim/id"
)

// CycleType tells the target how a beat relates to the beats around it.
type CycleType uint8

// The cycle types of a beat.
const (
	// Classic is a single-beat transaction.
	Classic CycleType = iota

	// IncrementingBurst is a beat that is followed by the beat at the next
	// address.
	IncrementingBurst

	// EndOfBurst is the final beat of a burst.
	EndOfBurst
)

func (c CycleType) String() string {
	switch c {
	case Classic:
		return "Classic"
	case IncrementingBurst:
		return "IncrementingBurst"
	case EndOfBurst:
		return "EndOfBurst"
	default:
		return fmt.Sprintf("CycleType(%d)", uint8(c))
	}
}

// IsFinal returns true if a beat of this type ends its transaction.
func (c CycleType) IsFinal() bool {
	return c != IncrementingBurst
}

// MsgMeta contains the meta data that is attached to every message.
type MsgMeta struct {
	ID       string
	Src, Dst string
}

// A Msg is a piece of information that is transferred between ports.
type Msg interface {
	Meta() *MsgMeta
}

// A Beat is one word-sized transfer driven by a master.
type Beat struct {
	MsgMeta

	TxnID    string
	Write    bool
	Address  uint64
	Data     Word
	Mask     ByteMask
	CTI      CycleType
	BurstLen int
}

// Meta returns the message meta.
func (b *Beat) Meta() *MsgMeta {
	return &b.MsgMeta
}

// BeatBuilder can build beats.
type BeatBuilder struct {
	txnID    string
	write    bool
	address  uint64
	data     Word
	mask     ByteMask
	cti      CycleType
	burstLen int
}

// WithTxnID sets the transaction the beat belongs to.
func (b BeatBuilder) WithTxnID(txnID string) BeatBuilder {
	b.txnID = txnID
	return b
}

// AsWrite marks the beat as a write.
func (b BeatBuilder) AsWrite() BeatBuilder {
	b.write = true
	return b
}

// WithAddress sets the word address of the beat.
func (b BeatBuilder) WithAddress(address uint64) BeatBuilder {
	b.address = address
	return b
}

// WithData sets the data written by the beat.
func (b BeatBuilder) WithData(data Word) BeatBuilder {
	b.data = data
	return b
}

// WithMask sets the lanes written by the beat.
func (b BeatBuilder) WithMask(mask ByteMask) BeatBuilder {
	b.mask = mask
	return b
}

// WithCycleType sets the cycle type of the beat.
func (b BeatBuilder) WithCycleType(cti CycleType) BeatBuilder {
	b.cti = cti
	return b
}

// WithBurstLen sets the number of beats in the transaction.
func (b BeatBuilder) WithBurstLen(burstLen int) BeatBuilder {
	b.burstLen = burstLen
	return b
}

// Build creates a new Beat.
func (b BeatBuilder) Build() *Beat {
	beat := &Beat{
		TxnID:    b.txnID,
		Write:    b.write,
		Address:  b.address,
		Data:     b.data,
		Mask:     b.mask,
		CTI:      b.cti,
		BurstLen: b.burstLen,
	}
	beat.ID = id.Generate()

	if beat.TxnID == "" {
		beat.TxnID = beat.ID
	}

	if beat.BurstLen == 0 {
		beat.BurstLen = 1
	}

	return beat
}

// An Ack is the target's acknowledgment of one beat. For reads it carries the
// data.
type Ack struct {
	MsgMeta

	RespondTo string
	TxnID     string
	Data      Word
	Last      bool
}

// Meta returns the message meta.
func (a *Ack) Meta() *MsgMeta {
	return &a.MsgMeta
}

// AckBuilder can build acknowledgments.
type AckBuilder struct {
	beat *Beat
	data Word
}

// WithBeat sets the beat being acknowledged.
func (b AckBuilder) WithBeat(beat *Beat) AckBuilder {
	b.beat = beat
	return b
}

// WithData sets the read data.
func (b AckBuilder) WithData(data Word) AckBuilder {
	b.data = data
	return b
}

// Build creates a new Ack.
func (b AckBuilder) Build() *Ack {
	if b.beat == nil {
		panic("ack must respond to a beat")
	}

	ack := &Ack{
		RespondTo: b.beat.ID,
		TxnID:     b.beat.TxnID,
		Data:      b.data,
		Last:      b.beat.CTI.IsFinal(),
	}
	ack.ID = id.Generate()

	return ack
}
