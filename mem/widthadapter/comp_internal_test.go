package widthadapter

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		top      *MockPort
		bottom   *MockPort
		c        *Comp
	)

	BeforeEach(func() {
		var err error

		mockCtrl = gomock.NewController(GinkgoT())
		top = NewMockPort(mockCtrl)
		bottom = NewMockPort(mockCtrl)

		c, err = MakeBuilder().Build("Adapter")
		Expect(err).NotTo(HaveOccurred())
		c.topPort = top
		c.bottomPort = bottom
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should shift a write to the upper half-word", func() {
		beat := burstbus.BeatBuilder{}.
			AsWrite().
			WithAddress(0x13).
			WithData(0xbeef).
			WithMask(0x3).
			Build()

		bottom.EXPECT().PeekIncoming().Return(nil)
		top.EXPECT().PeekIncoming().Return(beat)
		bottom.EXPECT().CanSend().Return(true)
		top.EXPECT().RetrieveIncoming().Return(beat)
		bottom.EXPECT().Send(gomock.Any()).
			DoAndReturn(func(msg burstbus.Msg) error {
				down := msg.(*burstbus.Beat)
				Expect(down.Address).To(Equal(uint64(0x9)))
				Expect(down.Data).To(Equal(burstbus.Word(0xbeef0000)))
				Expect(down.Mask).To(Equal(burstbus.ByteMask(0xc)))
				Expect(down.TxnID).To(Equal(beat.TxnID))

				return nil
			})

		Expect(c.Tick()).To(BeTrue())
	})

	It("should shift read data down by the remembered lane", func() {
		beat := burstbus.BeatBuilder{}.WithAddress(0x13).Build()
		c.lanes.Push(pendingBeat{beat: beat, lane: 1})

		ack := &burstbus.Ack{Data: 0x1234abcd, Last: true}

		bottom.EXPECT().PeekIncoming().Return(ack)
		top.EXPECT().CanSend().Return(true)
		bottom.EXPECT().RetrieveIncoming().Return(ack)
		top.EXPECT().Send(gomock.Any()).
			DoAndReturn(func(msg burstbus.Msg) error {
				up := msg.(*burstbus.Ack)
				Expect(up.Data).To(Equal(burstbus.Word(0x1234)))
				Expect(up.RespondTo).To(Equal(beat.ID))
				Expect(up.Last).To(BeTrue())

				return nil
			})
		top.EXPECT().PeekIncoming().Return(nil)

		Expect(c.Tick()).To(BeTrue())
	})

	It("should refuse bursts", func() {
		beat := burstbus.BeatBuilder{}.
			WithCycleType(burstbus.IncrementingBurst).
			Build()

		bottom.EXPECT().PeekIncoming().Return(nil)
		top.EXPECT().PeekIncoming().Return(beat)
		bottom.EXPECT().CanSend().Return(true)

		Expect(func() { c.Tick() }).To(Panic())
	})
})
