package id

import (
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ID generation", func() {
	It("should count up by default", func() {
		a, err := strconv.ParseUint(Generate(), 10, 64)
		Expect(err).NotTo(HaveOccurred())

		b, err := strconv.ParseUint(Generate(), 10, 64)
		Expect(err).NotTo(HaveOccurred())

		Expect(b).To(Equal(a + 1))
	})

	It("should not switch generators after use", func() {
		Generate()

		Expect(UseParallelIDGenerator).To(Panic())
	})

	It("should generate unique parallel IDs", func() {
		g := parallelIDGenerator{}

		Expect(g.Generate()).NotTo(Equal(g.Generate()))
	})
})
