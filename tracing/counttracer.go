package tracing

import (
	"sort"
	"sync"
)

// CountTracer counts started and completed tasks by their What field.
type CountTracer struct {
	filter TaskFilter

	lock      sync.Mutex
	inflight  map[string]string
	started   map[string]uint64
	completed map[string]uint64
	steps     map[string]uint64
}

// NewCountTracer creates a new CountTracer. A nil filter keeps every task.
func NewCountTracer(filter TaskFilter) *CountTracer {
	return &CountTracer{
		filter:    filter,
		inflight:  make(map[string]string),
		started:   make(map[string]uint64),
		completed: make(map[string]uint64),
		steps:     make(map[string]uint64),
	}
}

// StartTask counts a new task.
func (t *CountTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflight[task.ID] = task.What
	t.started[task.What]++
}

// StepTask counts the steps by name.
func (t *CountTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.inflight[task.ID]; !ok {
		return
	}

	for _, s := range task.Steps {
		t.steps[s.What]++
	}
}

// EndTask counts a completed task.
func (t *CountTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	what, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	t.completed[what]++
	delete(t.inflight, task.ID)
}

// Names returns the sorted list of task names seen so far.
func (t *CountTracer) Names() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := make([]string, 0, len(t.started))
	for n := range t.started {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Started returns the number of tasks started with the given name.
func (t *CountTracer) Started(what string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.started[what]
}

// Completed returns the number of tasks completed with the given name.
func (t *CountTracer) Completed(what string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.completed[what]
}

// StepCount returns how many times a step was reached.
func (t *CountTracer) StepCount(step string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.steps[step]
}

// InFlight returns the number of tasks started but not completed.
func (t *CountTracer) InFlight() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflight)
}
