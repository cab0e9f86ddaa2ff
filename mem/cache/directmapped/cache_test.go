package directmapped_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/delaymem/mem/backingstore"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/cache/directmapped"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
)

type driver struct {
	master    *burstbus.Master
	completed []*burstbus.Transaction
}

func (d *driver) Tick() bool {
	txn, progress := d.master.Tick()
	if txn != nil {
		d.completed = append(d.completed, txn)
	}

	return progress
}

type busOrder struct {
	ops []string
}

func (b *busOrder) StartTask(task tracing.Task) { b.ops = append(b.ops, task.What) }
func (b *busOrder) StepTask(tracing.Task)       {}
func (b *busOrder) EndTask(tracing.Task)        {}

var _ = Describe("Cache", func() {
	var (
		clock *timing.Clock
		cache *directmapped.Comp
		store *backingstore.Comp
		drv   *driver
		bus   *busOrder

		bottomLink *burstbus.Link
	)

	build := func(b directmapped.Builder) {
		var err error

		clock = timing.NewClock()
		cache, err = b.WithEngine(clock).Build("Cache")
		Expect(err).NotTo(HaveOccurred())

		port := burstbus.NewPort("Requester", 1)
		burstbus.MakeLinkBuilder().WithEngine(clock).
			Build("TopLink", port, cache.TopPort())

		drv = &driver{master: burstbus.NewMaster(port)}
		clock.RegisterTicker(drv)

		bus = &busOrder{}
		store = nil
		bottomLink = nil

		if cache.BottomPort() == nil {
			return
		}

		store, err = backingstore.MakeBuilder().
			WithEngine(clock).
			WithLatency(2).
			Build("Store")
		Expect(err).NotTo(HaveOccurred())

		bottomLink = burstbus.MakeLinkBuilder().WithEngine(clock).
			Build("BottomLink", cache.BottomPort(), store.TopPort())
		tracing.CollectTrace(bottomLink, bus)
	}

	run := func(txn *burstbus.Transaction) *burstbus.Transaction {
		drv.master.Start(txn)
		Expect(clock.Run()).To(Succeed())

		return drv.completed[len(drv.completed)-1]
	}

	write := func(addr uint64, w burstbus.Word) {
		run(burstbus.NewWriteTransaction(addr, []burstbus.Word{w}, 0xf))
	}

	read := func(addr uint64) burstbus.Word {
		return run(burstbus.NewReadTransaction(addr, 1)).Data[0]
	}

	BeforeEach(func() {
		build(directmapped.MakeBuilder().WithNumLines(4).WithBurstLen(4))
	})

	DescribeTable("configuration errors",
		func(b directmapped.Builder, target error) {
			_, err := b.Build("Bad")
			Expect(errors.Is(err, target)).To(BeTrue())
		},
		Entry("three lines",
			directmapped.MakeBuilder().WithNumLines(3),
			directmapped.ErrNumLinesNotPowerOfTwo),
		Entry("no lines",
			directmapped.MakeBuilder().WithNumLines(0),
			directmapped.ErrNumLinesNotPowerOfTwo),
		Entry("burst of one",
			directmapped.MakeBuilder().WithBurstLen(1),
			directmapped.ErrBurstTooShort),
		Entry("odd data width",
			directmapped.MakeBuilder().WithDataWidth(12),
			directmapped.ErrInvalidDataWidth),
		Entry("empty local storage",
			directmapped.MakeBuilder().WithLUTRAMBacked(0),
			directmapped.ErrInvalidCapacity),
	)

	It("should evict a dirty line before refilling a conflicting one", func() {
		write(0x00, 0xaaaa)
		write(0x40, 0xbbbb)

		Expect(bus.ops).To(Equal([]string{"read", "write", "read"}))
		Expect(cache.Stats().Evictions).To(Equal(uint64(1)))

		evicted, _ := store.Storage().Read(0x00)
		Expect(evicted).To(Equal(burstbus.Word(0xaaaa)))

		Expect(read(0x00)).To(Equal(burstbus.Word(0xaaaa)))
		Expect(bus.ops).To(Equal([]string{
			"read", "write", "read", "write", "read",
		}))

		stats := cache.Stats()
		Expect(stats.Misses).To(Equal(uint64(3)))
		Expect(stats.Hits).To(BeZero())
		Expect(stats.Refills).To(Equal(uint64(3)))
		Expect(stats.Evictions).To(Equal(uint64(2)))
	})

	It("should not evict a clean line", func() {
		Expect(read(0x00)).To(BeZero())
		Expect(read(0x10)).To(BeZero())

		Expect(bus.ops).To(Equal([]string{"read", "read"}))
		Expect(cache.Stats().Evictions).To(BeZero())
	})

	It("should serve hits without touching the backing store", func() {
		write(0x05, 1)
		write(0x06, 2)
		Expect(read(0x05)).To(Equal(burstbus.Word(1)))
		Expect(read(0x07)).To(BeZero())

		Expect(bus.ops).To(Equal([]string{"read"}))
		Expect(cache.Stats().Hits).To(Equal(uint64(3)))

		lines := cache.Lines()
		Expect(lines[1]).To(Equal(directmapped.Line{Tag: 0, Valid: true, Dirty: true}))
	})

	It("should keep the last word of a line across eviction and refill", func() {
		for offset := uint64(0); offset < 4; offset++ {
			write(0x0c+offset, burstbus.Word(0x100+offset))
		}

		write(0x1c, 0xdead)

		last, _ := store.Storage().Read(0x0f)
		Expect(last).To(Equal(burstbus.Word(0x103)))

		for offset := uint64(0); offset < 4; offset++ {
			Expect(read(0x0c + offset)).To(Equal(burstbus.Word(0x100 + offset)))
		}

		Expect(read(0x1c)).To(Equal(burstbus.Word(0xdead)))
	})

	It("should merge byte-masked writes", func() {
		write(0x21, 0x11223344)
		run(burstbus.NewWriteTransaction(0x21, []burstbus.Word{0xaabbccdd}, 0x2))

		Expect(read(0x21)).To(Equal(burstbus.Word(0x1122cc44)))
	})

	It("should wait between an eviction and the following refill", func() {
		build(directmapped.MakeBuilder().
			WithNumLines(4).
			WithBurstLen(4).
			WithWaitCycles(5))

		timer := &linkTimer{clock: clock}
		tracing.CollectTrace(bottomLink, timer)

		write(0x00, 1)
		write(0x10, 2)

		Expect(timer.kinds).To(Equal([]string{"read", "write", "read"}))
		Expect(timer.starts[2] - timer.ends[1]).To(BeNumerically(">", 5))
	})

	It("should stay coherent under random traffic", func() {
		r := rand.New(rand.NewSource(1))
		reference := make(map[uint64]burstbus.Word)

		for i := 0; i < 400; i++ {
			addr := uint64(r.Intn(96))

			if r.Intn(2) == 0 {
				w := burstbus.Word(r.Uint32())
				write(addr, w)
				reference[addr] = w

				continue
			}

			Expect(read(addr)).To(Equal(reference[addr]),
				"read %d of address %#x", i, addr)
		}
	})

	It("should serve every access locally when LUTRAM-backed", func() {
		build(directmapped.MakeBuilder().WithLUTRAMBacked(64))
		Expect(cache.BottomPort()).To(BeNil())

		var latencies []timing.VTimeInCycle

		for i := uint64(0); i < 8; i++ {
			start := clock.CurrentTime()
			write(i*7%64, burstbus.Word(i))
			latencies = append(latencies, clock.CurrentTime()-start)
		}

		for i := uint64(0); i < 8; i++ {
			start := clock.CurrentTime()
			Expect(read(i * 7 % 64)).To(Equal(burstbus.Word(i)))
			latencies = append(latencies, clock.CurrentTime()-start)
		}

		for _, l := range latencies {
			Expect(l).To(Equal(latencies[0]))
		}

		Expect(cache.Stats().Misses).To(BeZero())
		Expect(cache.Stats().Hits).To(Equal(uint64(16)))
	})
})

// linkTimer records when each transaction opens and closes on a link.
type linkTimer struct {
	clock  *timing.Clock
	kinds  []string
	starts []timing.VTimeInCycle
	ends   []timing.VTimeInCycle
}

func (l *linkTimer) StartTask(task tracing.Task) {
	l.kinds = append(l.kinds, task.What)
	l.starts = append(l.starts, l.clock.CurrentTime())
}

func (l *linkTimer) StepTask(tracing.Task) {}

func (l *linkTimer) EndTask(tracing.Task) {
	l.ends = append(l.ends, l.clock.CurrentTime())
}
