package platform_test

import (
	"database/sql"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/delaymem/config"
	"github.com/sarchlab/delaymem/datarecording"
	"github.com/sarchlab/delaymem/platform"
	"github.com/sarchlab/delaymem/tracing"
)

func smallConfig() *config.Config {
	no := false

	return &config.Config{
		StallLimit: 2000,
		Memory: config.MemoryConfig{
			Latency:      2,
			AddressWidth: 16,
			DataWidth:    32,
			BurstLen:     4,
			RandomSeed:   5,
		},
		DelayLines: []config.DelayLineConfig{
			{
				Name:              "Echo",
				Length:            64,
				SampleWidth:       16,
				Storage:           config.StoragePSRAM,
				BaseAddress:       0,
				CacheLines:        2,
				WriteTriggersTaps: true,
				Taps:              []config.TapConfig{{Delay: 0}, {Delay: 17}, {Delay: 63}},
			},
			{
				Name:        "Chorus",
				Length:      32,
				SampleWidth: 16,
				Storage:     config.StoragePSRAM,
				BaseAddress: 0x100,
				CacheLines:  4,
				Taps:        []config.TapConfig{{Dynamic: true}, {Delay: 5}},
			},
			{
				Name:        "Raw",
				Length:      16,
				SampleWidth: 16,
				Storage:     config.StoragePSRAM,
				BaseAddress: 0x200,
				CacheLines:  2,
				ZeroFill:    &no,
				Taps:        []config.TapConfig{{Dynamic: true}},
			},
			{
				Name:        "Short",
				Length:      8,
				SampleWidth: 16,
				Storage:     config.StorageLocal,
				Taps:        []config.TapConfig{{Dynamic: true}, {Delay: 0}},
			},
		},
	}
}

var _ = Describe("Platform", func() {
	It("should reject an invalid configuration", func() {
		cfg := smallConfig()
		cfg.DelayLines[0].Length = 60

		_, err := platform.MakeBuilder().WithConfig(cfg).Build()
		Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
	})

	It("should share the memory among the PSRAM lines only", func() {
		p, err := platform.MakeBuilder().WithConfig(smallConfig()).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(p.DelayLines).To(HaveLen(4))
		Expect(p.Arbiter.NumRequesters()).To(Equal(3))
		Expect(p.DelayLine("Short").BottomPort()).To(BeNil())
		Expect(p.DelayLine("Missing")).To(BeNil())
		Expect(p.Components()).To(HaveLen(3*4 + 3 + 2))
		Expect(p.Buffers()).To(HaveLen(4 + 3 + 2 + 1 + 2))
	})

	It("should return every sample a tap asks for", func() {
		p, err := platform.MakeBuilder().WithConfig(smallConfig()).Build()
		Expect(err).NotTo(HaveOccurred())

		w := platform.NewWorkload(p, 300, 11)
		Expect(p.Clock.RunUntil(w.Done, 5000000)).To(Succeed())

		for _, r := range w.Reports() {
			Expect(r.SamplesWritten).To(Equal(uint64(300)), r.Name)
			Expect(r.Mismatches).To(BeZero(), r.Name)
			Expect(r.Checked).NotTo(BeZero(), r.Name)

			if r.Name != "Raw" {
				Expect(r.Unverified).To(BeZero(), r.Name)
			}
		}

		Expect(p.MemoryLink.Stats().MaxConcurrentTransactions).To(Equal(1))

		for _, g := range p.Arbiter.Grants() {
			Expect(g).NotTo(BeZero())
		}

		for _, line := range p.DelayLines {
			Expect(line.BusLink().Stats().MaxConcurrentTransactions).
				To(Equal(1))
		}
	})

	It("should report the bus traffic to tracers", func() {
		counter := tracing.NewCountTracer(tracing.KindIs("bus"))

		p, err := platform.MakeBuilder().
			WithConfig(smallConfig()).
			WithTracer(counter).
			Build()
		Expect(err).NotTo(HaveOccurred())

		w := platform.NewWorkload(p, 50, 1)
		Expect(p.Clock.RunUntil(w.Done, 5000000)).To(Succeed())

		Expect(counter.Started("write")).NotTo(BeZero())
		Expect(counter.Started("read")).NotTo(BeZero())
	})

	It("should record completed transactions", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")
		recorder := datarecording.New(path)

		p, err := platform.MakeBuilder().
			WithConfig(smallConfig()).
			WithRecorder(recorder).
			Build()
		Expect(err).NotTo(HaveOccurred())

		w := platform.NewWorkload(p, 20, 1)
		Expect(p.Clock.RunUntil(w.Done, 5000000)).To(Succeed())
		p.Terminate()

		db, err := sql.Open("sqlite3", path+".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var count int
		Expect(db.QueryRow(
			"SELECT COUNT(*) FROM " + tracing.TaskTableName).Scan(&count)).
			To(Succeed())
		Expect(count).To(BeNumerically(">", 20))
		Expect(recorder.Close()).To(Succeed())
	})
})
