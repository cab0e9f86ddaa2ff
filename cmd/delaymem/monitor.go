package main

import (
	"github.com/sarchlab/delaymem/monitoring"
	"github.com/sarchlab/delaymem/platform"
)

// startMonitor serves the platform and returns a stop condition that also
// moves the progress bar.
func startMonitor(
	p *platform.Platform,
	w *platform.Workload,
	opts runOptions,
) func() bool {
	m := monitoring.NewMonitor().
		WithPortNumber(opts.port).
		WithBrowser(opts.browser)
	m.RegisterClock(p.Clock)

	for _, c := range p.Components() {
		m.RegisterComponent(c)
	}

	for _, line := range p.DelayLines {
		m.RegisterLink(line.BusLink())

		for i := 0; i < line.NumTaps(); i++ {
			m.RegisterBuffer(line.Tap(i).Output())
		}
	}

	if p.MemoryLink != nil {
		m.RegisterLink(p.MemoryLink)
	}

	total := uint64(opts.samples * len(p.DelayLines))
	bar := m.CreateProgressBar("Samples", total)

	m.StartServer()

	return func() bool {
		var written uint64
		for _, r := range w.Reports() {
			written += uint64(r.SamplesWritten)
		}

		bar.SetFinished(written)

		if !w.Done() {
			return false
		}

		m.CompleteProgressBar(bar)

		return true
	}
}
