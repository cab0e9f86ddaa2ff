package platform

import (
	"math/rand"

	"github.com/sarchlab/delaymem/config"
	"github.com/sarchlab/delaymem/delayline"
	"github.com/sarchlab/delaymem/mem/burstbus"
)

// expectation is the value a tap output must carry. Values read before the
// line was filled are only known when the line starts zeroed.
type expectation struct {
	value burstbus.Word
	known bool
}

// LineReport summarizes the traffic a workload drove through one delay line.
type LineReport struct {
	Name           string
	SamplesWritten uint64
	Requests       uint64
	Checked        uint64
	Unverified     uint64
	Mismatches     uint64
}

// A Workload streams deterministic samples through every delay line of a
// platform and checks each tap output against a reference model.
type Workload struct {
	drivers []*lineDriver
}

type lineDriver struct {
	line        *delayline.Comp
	numSamples  int
	sampleWidth int
	rng         *rand.Rand
	zeroed      bool
	auto        bool

	// history holds the pushed samples. The line accepts them in push
	// order, so history[k] is the k-th written sample.
	history   []burstbus.Word
	seen      int
	requested []int
	expected  [][]expectation

	report LineReport
}

// NewWorkload creates a workload of numSamples samples per delay line and
// registers it with the platform's clock.
func NewWorkload(p *Platform, numSamples int, seed int64) *Workload {
	w := &Workload{}

	for i, line := range p.DelayLines {
		cfg := p.Config.DelayLines[i]

		d := &lineDriver{
			line:        line,
			numSamples:  numSamples,
			sampleWidth: cfg.SampleWidth,
			rng:         rand.New(rand.NewSource(seed + int64(i))),
			zeroed:      startsZeroed(cfg, p.Config.Memory.RandomSeed),
			auto:        cfg.WriteTriggersTaps,
			requested:   make([]int, line.NumTaps()),
			expected:    make([][]expectation, line.NumTaps()),
			report:      LineReport{Name: line.Name()},
		}

		w.drivers = append(w.drivers, d)
	}

	p.Clock.RegisterTicker(w)

	return w
}

// Tick pushes samples, issues tap requests, and checks tap outputs.
func (w *Workload) Tick() bool {
	madeProgress := false

	for _, d := range w.drivers {
		madeProgress = d.tick() || madeProgress
	}

	return madeProgress
}

// Done tells if every sample was written and every tap output was checked.
func (w *Workload) Done() bool {
	for _, d := range w.drivers {
		if !d.done() {
			return false
		}
	}

	return true
}

// Reports returns one report per delay line.
func (w *Workload) Reports() []LineReport {
	var reports []LineReport
	for _, d := range w.drivers {
		reports = append(reports, d.report)
	}

	return reports
}

func startsZeroed(cfg config.DelayLineConfig, seed int64) bool {
	if !cfg.PSRAM() || seed == 0 {
		return true
	}

	return cfg.ZeroFill == nil || *cfg.ZeroFill
}

func (d *lineDriver) tick() bool {
	madeProgress := d.push()
	d.observeWrites()
	madeProgress = d.request() || madeProgress
	madeProgress = d.drain() || madeProgress

	return madeProgress
}

func (d *lineDriver) push() bool {
	in := d.line.Input()
	if len(d.history) >= d.numSamples || !in.CanPush() {
		return false
	}

	sample := burstbus.Word(d.rng.Uint32()) & burstbus.DataMask(d.sampleWidth)
	in.Push(sample)
	d.history = append(d.history, sample)

	return true
}

// observeWrites records the reads that every accepted sample triggered.
func (d *lineDriver) observeWrites() {
	written := int(d.line.Stats().SamplesWritten)

	for ; d.auto && d.seen < written; d.seen++ {
		for i := 0; i < d.line.NumTaps(); i++ {
			d.expected[i] = append(d.expected[i],
				d.expect(d.seen+1, d.line.Tap(i).Delay()))
		}
	}

	d.report.SamplesWritten = uint64(written)
}

func (d *lineDriver) request() bool {
	if d.auto {
		return false
	}

	madeProgress := false
	written := int(d.line.Stats().SamplesWritten)

	for i := 0; i < d.line.NumTaps(); i++ {
		tap := d.line.Tap(i)
		if d.requested[i] >= written || !tap.CanRequest() {
			continue
		}

		delay := tap.Delay()
		if tap.Fixed() {
			tap.Trigger()
		} else {
			delay = uint64(d.rng.Intn(2 * int(d.line.Length())))
			tap.Request(delay)
		}

		d.requested[i]++
		d.expected[i] = append(d.expected[i], d.expect(written, delay))
		madeProgress = true
	}

	return madeProgress
}

func (d *lineDriver) expect(written int, delay uint64) expectation {
	d.report.Requests++

	rel := int(delay % d.line.Length())
	idx := written - 1 - rel

	switch {
	case idx >= 0:
		return expectation{value: d.history[idx], known: true}
	case rel == 0:
		return expectation{known: true}
	}

	return expectation{known: d.zeroed}
}

func (d *lineDriver) drain() bool {
	madeProgress := false

	for i := 0; i < d.line.NumTaps(); i++ {
		out := d.line.Tap(i).Output()

		for out.Peek() != nil {
			got := out.Pop().(burstbus.Word)
			madeProgress = true

			if len(d.expected[i]) == 0 {
				d.report.Mismatches++
				continue
			}

			want := d.expected[i][0]
			d.expected[i] = d.expected[i][1:]

			switch {
			case !want.known:
				d.report.Unverified++
			case got == want.value:
				d.report.Checked++
			default:
				d.report.Mismatches++
			}
		}
	}

	return madeProgress
}

func (d *lineDriver) done() bool {
	if int(d.line.Stats().SamplesWritten) < d.numSamples {
		return false
	}

	for i := range d.expected {
		if len(d.expected[i]) > 0 {
			return false
		}

		if !d.auto && d.requested[i] < d.numSamples {
			return false
		}
	}

	return true
}
