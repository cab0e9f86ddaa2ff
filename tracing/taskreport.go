package tracing

import (
	"context"
	"sort"

	"github.com/sarchlab/delaymem/datarecording"
)

// ReadTasks loads the tasks that a DBTracer recorded.
func ReadTasks(
	ctx context.Context,
	r *datarecording.Reader,
	f datarecording.Filter,
) ([]TaskRecord, error) {
	return datarecording.Read[TaskRecord](ctx, r, TaskTableName, f)
}

// TaskSummary aggregates the recorded tasks of one kind and action at one
// location.
type TaskSummary struct {
	Location string
	Kind     string
	What     string

	Count     uint64
	TotalTime uint64
	MinTime   uint64
	MaxTime   uint64
}

// AverageTime returns the mean duration in cycles.
func (s TaskSummary) AverageTime() float64 {
	if s.Count == 0 {
		return 0
	}

	return float64(s.TotalTime) / float64(s.Count)
}

// SummarizeTasks groups tasks by location, kind, and action.
func SummarizeTasks(tasks []TaskRecord) []TaskSummary {
	type key struct{ location, kind, what string }

	groups := make(map[key]*TaskSummary)

	for _, t := range tasks {
		k := key{t.Location, t.Kind, t.What}
		d := t.EndTime - t.StartTime

		s, ok := groups[k]
		if !ok {
			s = &TaskSummary{
				Location: t.Location,
				Kind:     t.Kind,
				What:     t.What,
				MinTime:  d,
			}
			groups[k] = s
		}

		s.Count++
		s.TotalTime += d
		s.MinTime = min(s.MinTime, d)
		s.MaxTime = max(s.MaxTime, d)
	}

	out := make([]TaskSummary, 0, len(groups))
	for _, s := range groups {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Location != b.Location {
			return a.Location < b.Location
		}

		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}

		return a.What < b.What
	})

	return out
}
