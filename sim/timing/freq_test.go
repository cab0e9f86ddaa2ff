package timing_test

import (
	"time"

	"github.com/sarchlab/delaymem/sim/timing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Freq", func() {
	It("should give the period", func() {
		Expect((100 * timing.MHz).Period()).To(Equal(10 * time.Nanosecond))
	})

	It("should convert cycles to time", func() {
		f := 1 * timing.GHz

		Expect(f.Duration(2500)).To(Equal(2500 * time.Nanosecond))
	})

	It("should panic on a non-positive frequency", func() {
		Expect(func() { timing.Freq(0).Duration(1) }).To(Panic())
	})
})
