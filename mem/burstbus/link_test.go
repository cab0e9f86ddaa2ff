package burstbus

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
)

var _ = Describe("Link", func() {
	var (
		clock  *timing.Clock
		master Port
		target Port
		link   *Link
	)

	BeforeEach(func() {
		clock = timing.NewClock()
		master = NewPort("Master", 1)
		target = NewPort("Target", 1)
		link = MakeLinkBuilder().
			WithEngine(clock).
			WithStallLimit(5).
			Build("Link", master, target)
	})

	It("should refuse to send on an unconnected port", func() {
		p := NewPort("Lonely", 1)

		Expect(p.CanSend()).To(BeFalse())
		Expect(p.Send(BeatBuilder{}.Build())).To(MatchError(ErrNotConnected))
	})

	It("should deliver in the next cycle", func() {
		beat := BeatBuilder{}.WithAddress(4).Build()
		Expect(master.Send(beat)).To(Succeed())
		Expect(target.PeekIncoming()).To(BeNil())

		_, err := clock.Step()
		Expect(err).NotTo(HaveOccurred())

		Expect(target.PeekIncoming()).To(BeIdenticalTo(beat))
		Expect(beat.Src).To(Equal("Master"))
		Expect(beat.Dst).To(Equal("Target"))
	})

	It("should run out of credit when the receiver is full", func() {
		Expect(master.Send(BeatBuilder{}.Build())).To(Succeed())
		Expect(master.Send(BeatBuilder{}.Build())).To(MatchError(ErrPortBusy))

		_, _ = clock.Step()
		Expect(master.CanSend()).To(BeFalse())

		target.RetrieveIncoming()
		Expect(master.CanSend()).To(BeFalse())

		_, _ = clock.Step()
		Expect(master.CanSend()).To(BeTrue())
	})

	It("should report a stall", func() {
		beat := BeatBuilder{}.WithAddress(0x40).Build()
		Expect(master.Send(beat)).To(Succeed())

		err := clock.RunFor(10)

		var stall *StallError
		Expect(errors.As(err, &stall)).To(BeTrue())
		Expect(errors.Is(err, ErrStall)).To(BeTrue())
		Expect(stall.Beat).To(BeIdenticalTo(beat))
		Expect(stall.Elapsed).To(Equal(uint64(6)))
	})

	It("should not report a stall when the watchdog is off", func() {
		m := NewPort("M", 1)
		t := NewPort("T", 1)
		MakeLinkBuilder().WithEngine(clock).WithStallLimit(0).Build("Quiet", m, t)

		Expect(m.Send(BeatBuilder{}.Build())).To(Succeed())

		Expect(clock.RunFor(20)).To(Succeed())
	})

	It("should report overlapping transactions", func() {
		first := BeatBuilder{}.WithTxnID("a").
			WithCycleType(IncrementingBurst).WithBurstLen(2).Build()
		Expect(master.Send(first)).To(Succeed())
		_, _ = clock.Step()

		ack := AckBuilder{}.WithBeat(target.RetrieveIncoming().(*Beat)).Build()
		Expect(ack.Last).To(BeFalse())
		Expect(target.Send(ack)).To(Succeed())
		_, _ = clock.Step()
		master.RetrieveIncoming()

		Expect(master.Send(BeatBuilder{}.WithTxnID("b").Build())).To(Succeed())
		_, err := clock.Step()

		var overlap *OverlapError
		Expect(errors.As(err, &overlap)).To(BeTrue())
		Expect(overlap.OpenTxnID).To(Equal("a"))
		Expect(overlap.NewTxnID).To(Equal("b"))
		Expect(link.Stats().MaxConcurrentTransactions).To(Equal(2))
	})

	It("should trace each transaction once", func() {
		counter := tracing.NewCountTracer(nil)
		tracing.CollectTrace(link, counter)

		mt := newMemTarget("Mem", 0)
		m := NewPort("BusMaster", 1)
		l := MakeLinkBuilder().WithEngine(clock).Build("Bus", m, mt.port)
		tracing.CollectTrace(l, counter)

		driver := &masterTicker{master: NewMaster(m)}
		clock.RegisterTicker(driver)
		clock.RegisterTicker(mt)

		driver.master.Start(NewReadTransaction(0, 4))
		Expect(clock.Run()).To(Succeed())

		Expect(counter.Started("read")).To(Equal(uint64(1)))
		Expect(counter.Completed("read")).To(Equal(uint64(1)))
		Expect(l.Stats().Beats).To(Equal(uint64(4)))
		Expect(l.Stats().Acks).To(Equal(uint64(4)))
		Expect(l.Stats().Transactions).To(Equal(uint64(1)))
		Expect(l.Busy()).To(BeFalse())
	})
})
