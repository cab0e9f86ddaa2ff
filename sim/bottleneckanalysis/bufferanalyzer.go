// Package bottleneckanalysis finds the buffers that stay full for long.
package bottleneckanalysis

import (
	"io"
	"log"
	"sort"

	"github.com/sarchlab/delaymem/sim/hooking"
	"github.com/sarchlab/delaymem/sim/queueing"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/tebeka/atexit"
)

// BufferAnalyzer tracks how long every analyzed buffer stays at each level.
type BufferAnalyzer struct {
	timeTeller timing.TimeTeller
	logger     *log.Logger
	period     uint64
	lastPeriod uint64

	buffers map[string]*bufferInfo
	names   []string
}

type bufferInfo struct {
	buf                   queueing.Buffer
	lastLevel             int
	lastTime              timing.VTimeInCycle
	levelToDuration       map[int]uint64
	periodLevelToDuration map[int]uint64
}

func averageLevel(levelToDuration map[int]uint64) float64 {
	sum := 0.0
	durationSum := 0.0

	for level, duration := range levelToDuration {
		sum += float64(level) * float64(duration)
		durationSum += float64(duration)
	}

	if durationSum == 0 {
		return 0
	}

	return sum / durationSum
}

// BufferLevel summarizes one buffer.
type BufferLevel struct {
	Name          string
	Capacity      int
	Current       int
	Average       float64
	PeriodAverage float64
}

// A BufferAnalyzerBuilder can build BufferAnalyzers.
type BufferAnalyzerBuilder struct {
	timeTeller timing.TimeTeller
	writer     io.Writer
	period     uint64
	atExit     bool
}

// MakeBufferAnalyzerBuilder returns a builder that reports to the default
// logger.
func MakeBufferAnalyzerBuilder() BufferAnalyzerBuilder {
	return BufferAnalyzerBuilder{}
}

// WithTimeTeller sets the source of the current cycle.
func (b BufferAnalyzerBuilder) WithTimeTeller(
	t timing.TimeTeller,
) BufferAnalyzerBuilder {
	b.timeTeller = t
	return b
}

// WithWriter sets where reports go.
func (b BufferAnalyzerBuilder) WithWriter(w io.Writer) BufferAnalyzerBuilder {
	b.writer = w
	return b
}

// WithPeriod reports the buffer levels every period cycles.
func (b BufferAnalyzerBuilder) WithPeriod(period uint64) BufferAnalyzerBuilder {
	b.period = period
	return b
}

// WithReportAtExit prints a final report when the program exits through
// atexit.
func (b BufferAnalyzerBuilder) WithReportAtExit() BufferAnalyzerBuilder {
	b.atExit = true
	return b
}

// Build creates the BufferAnalyzer.
func (b BufferAnalyzerBuilder) Build() *BufferAnalyzer {
	if b.timeTeller == nil {
		log.Panic("buffer analyzer requires a time teller")
	}

	logger := log.Default()
	if b.writer != nil {
		logger = log.New(b.writer, "", 0)
	}

	ba := &BufferAnalyzer{
		timeTeller: b.timeTeller,
		logger:     logger,
		period:     b.period,
		buffers:    make(map[string]*bufferInfo),
	}

	if b.atExit {
		atexit.Register(ba.Report)
	}

	return ba
}

// AnalyzeBuffer starts tracking a buffer.
func (b *BufferAnalyzer) AnalyzeBuffer(buf queueing.Buffer) {
	if _, ok := b.buffers[buf.Name()]; ok {
		log.Panicf("buffer %s is already analyzed", buf.Name())
	}

	b.buffers[buf.Name()] = &bufferInfo{
		buf:                   buf,
		lastLevel:             buf.Size(),
		lastTime:              b.timeTeller.CurrentTime(),
		levelToDuration:       make(map[int]uint64),
		periodLevelToDuration: make(map[int]uint64),
	}
	b.names = append(b.names, buf.Name())

	buf.AcceptHook(b)
}

// Func records a buffer level change.
func (b *BufferAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != queueing.HookPosBufPush && ctx.Pos != queueing.HookPosBufPop {
		return
	}

	buf := ctx.Domain.(queueing.Buffer)
	now := b.timeTeller.CurrentTime()

	if b.period > 0 {
		p := uint64(now) / b.period
		if p != b.lastPeriod {
			b.Report()
			b.resetPeriod()
			b.lastPeriod = p
		}
	}

	info, ok := b.buffers[buf.Name()]
	if !ok {
		log.Panicf("buffer %s is not analyzed", buf.Name())
	}

	duration := uint64(now - info.lastTime)
	info.levelToDuration[info.lastLevel] += duration

	if b.period > 0 {
		inPeriod := uint64(now) - b.lastPeriod*b.period
		info.periodLevelToDuration[info.lastLevel] += min(duration, inPeriod)
	}

	info.lastTime = now
	info.lastLevel = buf.Size()
}

func (b *BufferAnalyzer) resetPeriod() {
	for _, info := range b.buffers {
		info.periodLevelToDuration = make(map[int]uint64)
	}
}

// Levels returns the summary of every buffer, the fullest on average first.
func (b *BufferAnalyzer) Levels() []BufferLevel {
	levels := make([]BufferLevel, 0, len(b.names))

	for _, name := range b.names {
		info := b.buffers[name]
		levels = append(levels, BufferLevel{
			Name:          name,
			Capacity:      info.buf.Capacity(),
			Current:       info.buf.Size(),
			Average:       averageLevel(info.levelToDuration),
			PeriodAverage: averageLevel(info.periodLevelToDuration),
		})
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Average/float64(levels[i].Capacity) >
			levels[j].Average/float64(levels[j].Capacity)
	})

	return levels
}

// Report prints one line per buffer.
func (b *BufferAnalyzer) Report() {
	now := b.timeTeller.CurrentTime()

	for _, l := range b.Levels() {
		b.logger.Printf("%s, %d, %d, %.4f, %.4f, %d",
			l.Name, now, l.Current, l.Average, l.PeriodAverage, l.Capacity)
	}
}
