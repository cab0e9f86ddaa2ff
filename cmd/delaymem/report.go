package main

import (
	"log"

	"github.com/sarchlab/delaymem/platform"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
)

func report(
	p *platform.Platform,
	w *platform.Workload,
	busy *tracing.BusyTimeTracer,
	latency *tracing.TotalTimeTracer,
	freq timing.Freq,
) {
	now := p.Clock.CurrentTime()
	if freq > 0 {
		log.Printf("simulated %d cycles, %v at %.0f MHz",
			now, freq.Duration(now), float64(freq/timing.MHz))
	} else {
		log.Printf("simulated %d cycles", now)
	}

	for _, r := range w.Reports() {
		log.Printf("%s: %d samples, %d requests, %d checked, "+
			"%d unverified, %d mismatches",
			r.Name, r.SamplesWritten, r.Requests, r.Checked,
			r.Unverified, r.Mismatches)
	}

	for _, line := range p.DelayLines {
		s := line.Stats()
		log.Printf("%s: %d reads, %d short circuits, %d zero-fill writes, "+
			"%d hazard stalls, %d trigger stalls",
			line.Name(), s.ReadsIssued, s.ShortCircuits, s.ZeroFillWrites,
			s.HazardStalls, s.TriggerStalls)

		c := line.Cache().Stats()
		log.Printf("%s: %d hits, %d misses, %d evictions, %d refills",
			line.Cache().Name(), c.Hits, c.Misses, c.Evictions, c.Refills)
	}

	if p.MemoryLink == nil {
		return
	}

	l := p.MemoryLink.Stats()
	log.Printf("%s: %d transactions, %d beats, busy %d of %d cycles, "+
		"%.2f cycles per transaction",
		p.MemoryLink.Name(), l.Transactions, l.Beats,
		busy.BusyTime(), now, latency.AverageTime())
}
