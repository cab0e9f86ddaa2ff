package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sarchlab/delaymem/datarecording"
	"github.com/sarchlab/delaymem/tracing"
	"github.com/spf13/cobra"
)

type traceOptions struct {
	location string
	what     string
}

var traceOpts traceOptions

var traceCmd = &cobra.Command{
	Use:   "trace <recording>",
	Short: "Summarize the tasks stored by run --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return summarizeTrace(cmd.Context(), cmd.OutOrStdout(), args[0],
			traceOpts)
	},
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceOpts.location, "location", "",
		"only count tasks traced at this location")
	f.StringVar(&traceOpts.what, "what", "",
		"only count tasks of this type, such as read or write")

	rootCmd.AddCommand(traceCmd)
}

func (o traceOptions) filter() datarecording.Filter {
	var f datarecording.Filter

	if o.location != "" {
		f.Where = "Location = ?"
		f.Args = append(f.Args, o.location)
	}

	if o.what != "" {
		if f.Where != "" {
			f.Where += " AND "
		}

		f.Where += "What = ?"
		f.Args = append(f.Args, o.what)
	}

	return f
}

func summarizeTrace(
	ctx context.Context,
	w io.Writer,
	path string,
	opts traceOptions,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := datarecording.OpenReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	tasks, err := tracing.ReadTasks(ctx, reader, opts.filter())
	if err != nil {
		return err
	}

	summary := tracing.SummarizeTasks(tasks)
	if len(summary) == 0 {
		fmt.Fprintln(w, "no tasks recorded")
		return nil
	}

	fmt.Fprintf(w, "%-32s %-8s %-8s %8s %10s %6s %6s\n",
		"location", "kind", "what", "count", "avg", "min", "max")

	for _, s := range summary {
		fmt.Fprintf(w, "%-32s %-8s %-8s %8d %10.2f %6d %6d\n",
			s.Location, s.Kind, s.What, s.Count, s.AverageTime(),
			s.MinTime, s.MaxTime)
	}

	return nil
}
