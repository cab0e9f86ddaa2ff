package directmapped

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("decompose", func() {
	var c *Comp

	BeforeEach(func() {
		var err error

		c, err = MakeBuilder().WithNumLines(4).WithBurstLen(4).Build("Cache")
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("address split",
		func(addr, tag, line, offset uint64) {
			gotTag, gotLine, gotOffset := c.decompose(addr)

			Expect(gotTag).To(Equal(tag))
			Expect(gotLine).To(Equal(line))
			Expect(gotOffset).To(Equal(offset))
		},
		Entry("first word", uint64(0x00), uint64(0), uint64(0), uint64(0)),
		Entry("last word of line 0", uint64(0x03), uint64(0), uint64(0), uint64(3)),
		Entry("line 1", uint64(0x05), uint64(0), uint64(1), uint64(1)),
		Entry("next tag, line 0", uint64(0x10), uint64(1), uint64(0), uint64(0)),
		Entry("far tag", uint64(0x40), uint64(4), uint64(0), uint64(0)),
		Entry("line 3, tag 2", uint64(0x2f), uint64(2), uint64(3), uint64(3)),
	)

	It("should compute the line base address", func() {
		c.baseAddress = 0x1000

		Expect(c.lineAddress(2, 3)).To(Equal(uint64(0x1000 + (2*4+3)*4)))
	})

	It("should start with every line invalid", func() {
		for _, l := range c.Lines() {
			Expect(l.Valid).To(BeFalse())
			Expect(l.Dirty).To(BeFalse())
		}
	})
})
