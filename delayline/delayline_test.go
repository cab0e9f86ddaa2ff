package delayline_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/delaymem/delayline"
	"github.com/sarchlab/delaymem/mem/backingstore"
	"github.com/sarchlab/delaymem/mem/burstbus"
	"github.com/sarchlab/delaymem/mem/cache/directmapped"
	"github.com/sarchlab/delaymem/sim/timing"
)

// producer pushes samples into a delay line as fast as it accepts them.
type producer struct {
	line    *delayline.Comp
	samples []burstbus.Word
}

func (p *producer) Tick() bool {
	if len(p.samples) == 0 || !p.line.Input().CanPush() {
		return false
	}

	p.line.Input().Push(p.samples[0])
	p.samples = p.samples[1:]

	return true
}

// consumer drains every tap output.
type consumer struct {
	line    *delayline.Comp
	outputs [][]burstbus.Word
	paused  bool
}

func (c *consumer) Tick() bool {
	if c.paused {
		return false
	}

	madeProgress := false

	for i := 0; i < c.line.NumTaps(); i++ {
		for c.line.Tap(i).Output().Peek() != nil {
			w := c.line.Tap(i).Output().Pop().(burstbus.Word)
			c.outputs[i] = append(c.outputs[i], w)
			madeProgress = true
		}
	}

	return madeProgress
}

type system struct {
	clock *timing.Clock
	line  *delayline.Comp
	store *backingstore.Comp
	prod  *producer
	cons  *consumer
}

func buildSystem(b delayline.Builder, psram bool, seed int64) *system {
	s := &system{clock: timing.NewClock()}

	line, err := b.WithEngine(s.clock).Build("Line")
	Expect(err).NotTo(HaveOccurred())
	s.line = line

	if psram {
		storeBuilder := backingstore.MakeBuilder().
			WithEngine(s.clock).
			WithLatency(3)
		if seed != 0 {
			storeBuilder = storeBuilder.WithRandomInit(seed)
		}

		s.store, err = storeBuilder.Build("Store")
		Expect(err).NotTo(HaveOccurred())

		burstbus.MakeLinkBuilder().
			WithEngine(s.clock).
			Build("MemLink", line.BottomPort(), s.store.TopPort())
	}

	s.prod = &producer{line: line}
	s.cons = &consumer{
		line:    line,
		outputs: make([][]burstbus.Word, line.NumTaps()),
	}
	s.clock.RegisterTicker(s.prod)
	s.clock.RegisterTicker(s.cons)

	return s
}

func (s *system) write(samples ...burstbus.Word) {
	s.prod.samples = append(s.prod.samples, samples...)
	Expect(s.clock.Run()).To(Succeed())
	Expect(s.prod.samples).To(BeEmpty())
	Expect(s.line.Input().Size()).To(BeZero())
}

func (s *system) settle() {
	Expect(s.clock.Run()).To(Succeed())
}

func (s *system) waitReady() {
	Expect(s.clock.RunUntil(s.line.Ready, 100000)).To(Succeed())
}

// expected returns the sample written delay samples before the k-th one, or
// zero when the line had not been filled that far.
func expected(history []burstbus.Word, k int, delay uint64) burstbus.Word {
	i := k - int(delay)
	if i < 0 {
		return 0
	}

	return history[i]
}

func words(from, to int) []burstbus.Word {
	var ws []burstbus.Word
	for i := from; i <= to; i++ {
		ws = append(ws, burstbus.Word(i))
	}

	return ws
}

var _ = Describe("DelayLine", func() {
	DescribeTable("configuration errors",
		func(b delayline.Builder, target error) {
			_, err := b.WithEngine(timing.NewClock()).Build("Bad")
			Expect(errors.Is(err, target)).To(BeTrue(), "got %v", err)
		},
		Entry("length not a power of two",
			delayline.MakeBuilder().WithLength(6),
			delayline.ErrLengthNotPowerOfTwo),
		Entry("length of one",
			delayline.MakeBuilder().WithLength(1),
			delayline.ErrLengthNotPowerOfTwo),
		Entry("fixed delay equal to the length",
			delayline.MakeBuilder().WithLength(8).WithFixedTap(8),
			delayline.ErrDelayTooLong),
		Entry("write-triggered dynamic tap",
			delayline.MakeBuilder().WithDynamicTap().WithWriteTriggersTaps(),
			delayline.ErrDynamicTapTriggered),
		Entry("odd sample width",
			delayline.MakeBuilder().WithSampleWidth(12),
			delayline.ErrInvalidSampleWidth),
		Entry("cache lines not a power of two",
			delayline.MakeBuilder().WithPSRAM(0, 3, 4, 32),
			directmapped.ErrNumLinesNotPowerOfTwo),
		Entry("cache burst too short",
			delayline.MakeBuilder().WithPSRAM(0, 4, 1, 32),
			directmapped.ErrBurstTooShort),
	)

	It("should require an engine", func() {
		_, err := delayline.MakeBuilder().Build("Line")
		Expect(err).To(HaveOccurred())
	})

	for _, psram := range []bool{false, true} {
		psram := psram

		Context(map[bool]string{false: "local", true: "psram"}[psram], func() {
			newBuilder := func() delayline.Builder {
				b := delayline.MakeBuilder().WithLength(8)
				if psram {
					b = b.WithPSRAM(0x100, 1, 2, 32)
				}

				return b
			}

			It("should return the sample written three writes earlier", func() {
				s := buildSystem(newBuilder().WithFixedTap(3), psram, 0)
				s.waitReady()

				s.write(words(1, 5)...)
				Expect(s.line.Tap(0).Trigger()).To(BeTrue())
				s.settle()

				s.write(words(6, 8)...)
				s.settle()

				Expect(s.cons.outputs[0]).To(Equal([]burstbus.Word{2}))
			})

			It("should serialize two taps requesting on the same tick", func() {
				s := buildSystem(
					newBuilder().WithDynamicTap().WithDynamicTap(), psram, 0)
				s.waitReady()
				s.write(words(1, 8)...)

				for _, d := range []uint64{1, 2, 3} {
					Expect(s.line.Tap(0).Request(d)).To(BeTrue())
					Expect(s.line.Tap(1).Request(d + 3)).To(BeTrue())
				}

				s.settle()

				Expect(s.cons.outputs[0]).To(Equal([]burstbus.Word{7, 6, 5}))
				Expect(s.cons.outputs[1]).To(Equal([]burstbus.Word{4, 3, 2}))

				grants := s.line.Arbiter().Grants()
				Expect(grants[1]).To(Equal(uint64(3)))
				Expect(grants[2]).To(Equal(uint64(3)))
				Expect(s.line.BusLink().Stats().MaxConcurrentTransactions).
					To(Equal(1))
			})

			It("should wrap dynamic delays around the buffer", func() {
				s := buildSystem(newBuilder().WithDynamicTap(), psram, 0)
				s.waitReady()
				s.write(words(1, 8)...)

				Expect(s.line.Tap(0).Request(3)).To(BeTrue())
				Expect(s.line.Tap(0).Request(8 + 3)).To(BeTrue())
				Expect(s.line.Tap(0).Request(16)).To(BeTrue())
				s.settle()

				Expect(s.cons.outputs[0]).To(Equal([]burstbus.Word{5, 5, 8}))
			})

			It("should return the sample d writes earlier for every delay", func() {
				s := buildSystem(newBuilder().WithDynamicTap(), psram, 0)
				s.waitReady()

				r := rand.New(rand.NewSource(7))
				var history []burstbus.Word
				var want []burstbus.Word

				for k := 0; k < 20; k++ {
					w := burstbus.Word(r.Intn(1 << 16))
					history = append(history, w)
					s.write(w)

					for d := uint64(1); d < 8; d++ {
						Expect(s.line.Tap(0).Request(d)).To(BeTrue())
						want = append(want, expected(history, k, d))
						s.settle()
					}
				}

				Expect(s.cons.outputs[0]).To(Equal(want))
			})
		})
	}

	It("should short circuit a zero delay without reading memory", func() {
		s := buildSystem(
			delayline.MakeBuilder().
				WithLength(16).
				WithFixedTap(0).
				WithWriteTriggersTaps(),
			false, 0)

		samples := words(100, 130)
		s.write(samples...)
		s.settle()

		Expect(s.cons.outputs[0]).To(Equal(samples))

		stats := s.line.Stats()
		Expect(stats.ShortCircuits).To(Equal(uint64(len(samples))))
		Expect(stats.ReadsIssued).To(BeZero())
		Expect(s.line.BusLink().Stats().Transactions).
			To(Equal(uint64(len(samples))))
	})

	It("should keep each tap in order when writes trigger every tap", func() {
		s := buildSystem(
			delayline.MakeBuilder().
				WithLength(8).
				WithPSRAM(0x40, 1, 2, 32).
				WithFixedTap(1).
				WithFixedTap(5).
				WithFixedTap(7).
				WithFixedTap(0).
				WithWriteTriggersTaps(),
			true, 42)

		r := rand.New(rand.NewSource(3))
		var samples []burstbus.Word
		for i := 0; i < 100; i++ {
			samples = append(samples, burstbus.Word(r.Intn(1<<16)))
		}

		s.write(samples...)
		s.settle()

		for i, d := range []uint64{1, 5, 7, 0} {
			Expect(s.cons.outputs[i]).To(HaveLen(len(samples)))

			for k := range samples {
				Expect(s.cons.outputs[i][k]).
					To(Equal(expected(samples, k, d)),
						"tap %d, sample %d", i, k)
			}
		}

		Expect(s.line.Cache().Stats().Evictions).NotTo(BeZero())
		Expect(s.line.BusLink().Stats().MaxConcurrentTransactions).
			To(Equal(1))

		for _, g := range s.line.Arbiter().Grants() {
			Expect(g).NotTo(BeZero())
		}
	})

	It("should hold every tap until the zero fill completes", func() {
		s := buildSystem(
			delayline.MakeBuilder().
				WithLength(16).
				WithPSRAM(0, 2, 4, 32).
				WithFixedTap(4),
			true, 99)

		Expect(s.line.Ready()).To(BeFalse())
		Expect(s.line.Tap(0).CanRequest()).To(BeFalse())
		Expect(s.line.Tap(0).Trigger()).To(BeFalse())

		s.line.Input().Push(burstbus.Word(0x1234))
		Expect(s.clock.RunFor(10)).To(Succeed())
		Expect(s.line.Input().Size()).To(Equal(1))
		Expect(s.cons.outputs[0]).To(BeEmpty())

		s.waitReady()
		Expect(s.line.Stats().ZeroFillWrites).To(Equal(uint64(16)))

		Expect(s.line.Tap(0).Trigger()).To(BeTrue())
		s.settle()

		Expect(s.cons.outputs[0]).To(Equal([]burstbus.Word{0}))
	})

	It("should skip the zero fill of a local line by default", func() {
		s := buildSystem(delayline.MakeBuilder().WithLength(8), false, 0)

		Expect(s.line.Ready()).To(BeTrue())
		s.settle()
		Expect(s.line.Stats().ZeroFillWrites).To(BeZero())
	})

	It("should not overwrite a sample a tap still has to read", func() {
		s := buildSystem(
			delayline.MakeBuilder().
				WithLength(4).
				WithDynamicTap().
				WithOutputSize(1),
			false, 0)

		s.write(words(1, 4)...)

		s.cons.paused = true
		Expect(s.line.Tap(0).Request(3)).To(BeTrue())
		Expect(s.line.Tap(0).Request(3)).To(BeTrue())
		Expect(s.line.Tap(0).Request(1)).To(BeTrue())
		s.settle()

		s.prod.samples = append(s.prod.samples, 5)
		s.settle()

		Expect(s.line.Input().Size()).To(Equal(1))
		Expect(s.line.Stats().HazardStalls).NotTo(BeZero())
		Expect(s.line.WritePointer()).To(BeZero())

		s.cons.paused = false
		s.settle()

		Expect(s.line.Input().Size()).To(BeZero())
		Expect(s.line.WritePointer()).To(Equal(uint64(1)))
		Expect(s.cons.outputs[0]).To(Equal([]burstbus.Word{1, 1, 3}))
	})
})
