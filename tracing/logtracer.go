package tracing

import (
	"log"
	"sync"

	"github.com/sarchlab/delaymem/sim/timing"
)

// LogTracer writes one line for every completed task.
type LogTracer struct {
	timeTeller timing.TimeTeller
	filter     TaskFilter
	logger     *log.Logger

	lock     sync.Mutex
	inflight map[string]Task
}

// NewLogTracer creates a LogTracer that prints with the given logger.
func NewLogTracer(
	timeTeller timing.TimeTeller,
	logger *log.Logger,
	filter TaskFilter,
) *LogTracer {
	return &LogTracer{
		timeTeller: timeTeller,
		filter:     filter,
		logger:     logger,
		inflight:   make(map[string]Task),
	}
}

// StartTask remembers the task.
func (t *LogTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflight[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing
func (t *LogTracer) StepTask(_ Task) {}

// EndTask prints the task.
func (t *LogTracer) EndTask(task Task) {
	end := t.timeTeller.CurrentTime()

	t.lock.Lock()
	original, ok := t.inflight[task.ID]
	delete(t.inflight, task.ID)
	t.lock.Unlock()

	if !ok {
		return
	}

	t.logger.Printf("%d-%d %s %s %s %s",
		original.StartTime, end,
		original.Where, original.Kind, original.What, original.ID)
}
