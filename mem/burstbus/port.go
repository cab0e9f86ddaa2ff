package burstbus

import (
	"errors"
	"log"

	"github.com/sarchlab/delaymem/sim/hooking"
	"github.com/sarchlab/delaymem/sim/naming"
)

// HookPosPortMsgSend marks when a message is sent out from the port.
var HookPosPortMsgSend = &hooking.HookPos{Name: "Port Msg Send"}

// HookPosPortMsgRetrieve marks when an inbound message is taken out of the
// incoming queue.
var HookPosPortMsgRetrieve = &hooking.HookPos{Name: "Port Msg Retrieve"}

// Errors returned by Send.
var (
	ErrPortBusy     = errors.New("port busy")
	ErrNotConnected = errors.New("port not connected")
)

// A Port is one end of a Link.
type Port interface {
	naming.Named
	hooking.Hookable

	// CanSend tells if a message sent in this cycle would be accepted.
	CanSend() bool

	// Send stages a message. The peer sees it in the next cycle.
	Send(msg Msg) error

	// PeekIncoming returns the oldest delivered message without removing it.
	PeekIncoming() Msg

	// RetrieveIncoming removes and returns the oldest delivered message.
	RetrieveIncoming() Msg

	// NumIncoming returns the number of delivered messages not retrieved yet.
	NumIncoming() int
}

// NewPort creates a port whose incoming queue holds bufSize messages.
func NewPort(name string, bufSize int) Port {
	naming.NameMustBeValid(name)

	if bufSize <= 0 {
		log.Panicf("port %s must have a positive buffer size", name)
	}

	return &defaultPort{
		name:    name,
		bufSize: bufSize,
	}
}

type defaultPort struct {
	hooking.HookableBase

	name    string
	bufSize int
	peer    *defaultPort

	incoming []Msg
	staged   []Msg
	credits  int
}

func (p *defaultPort) Name() string {
	return p.name
}

func (p *defaultPort) CanSend() bool {
	return p.peer != nil && p.credits > 0
}

func (p *defaultPort) Send(msg Msg) error {
	if p.peer == nil {
		return ErrNotConnected
	}

	if p.credits <= 0 {
		return ErrPortBusy
	}

	meta := msg.Meta()
	meta.Src = p.name
	meta.Dst = p.peer.name

	p.staged = append(p.staged, msg)
	p.credits--

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPortMsgSend,
			Item:   msg,
		})
	}

	return nil
}

func (p *defaultPort) PeekIncoming() Msg {
	if len(p.incoming) == 0 {
		return nil
	}

	return p.incoming[0]
}

func (p *defaultPort) RetrieveIncoming() Msg {
	if len(p.incoming) == 0 {
		return nil
	}

	msg := p.incoming[0]
	p.incoming[0] = nil
	p.incoming = p.incoming[1:]

	if p.NumHooks() > 0 {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPortMsgRetrieve,
			Item:   msg,
		})
	}

	return msg
}

func (p *defaultPort) NumIncoming() int {
	return len(p.incoming)
}

// deliver moves the messages staged during the tick into the peer and renews
// the send credits from the peer's committed queue level.
func (p *defaultPort) deliver() bool {
	moved := len(p.staged) > 0

	p.peer.incoming = append(p.peer.incoming, p.staged...)
	p.staged = p.staged[:0]
	p.credits = p.peer.bufSize - len(p.peer.incoming)

	return moved
}
