package tracing

import (
	"sync"

	"github.com/sarchlab/delaymem/datarecording"
	"github.com/sarchlab/delaymem/sim/timing"
)

// TaskTableName is the table that DBTracer writes completed tasks into.
const TaskTableName = "trace"

// TaskRecord is a row of the task table.
type TaskRecord struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime uint64
	EndTime   uint64
}

// DBTracer stores completed tasks into a database.
type DBTracer struct {
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	mu           sync.Mutex
	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTableName, TaskRecord{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.mu.Lock()
	t.tracingTasks[task.ID] = task
	t.mu.Unlock()
}

// StepTask does nothing for now.
func (t *DBTracer) StepTask(_ Task) {}

// EndTask writes the task into the database.
func (t *DBTracer) EndTask(task Task) {
	end := t.timeTeller.CurrentTime()

	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	t.backend.InsertData(TaskTableName, TaskRecord{
		ID:        original.ID,
		ParentID:  original.ParentID,
		Kind:      original.Kind,
		What:      original.What,
		Location:  original.Where,
		StartTime: uint64(original.StartTime),
		EndTime:   uint64(end),
	})
}

// Terminate drops the unfinished tasks and flushes the database.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}
