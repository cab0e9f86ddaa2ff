package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/delaymem/config"
	"github.com/sarchlab/delaymem/datarecording"
	"github.com/sarchlab/delaymem/platform"
	"github.com/sarchlab/delaymem/sim/bottleneckanalysis"
	"github.com/sarchlab/delaymem/sim/timing"
	"github.com/sarchlab/delaymem/tracing"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

type runOptions struct {
	configPath string
	envFiles   []string
	dumpPath   string
	samples    int
	seed       int64
	maxCycles  uint64
	record     string
	logBus     bool
	monitor    bool
	port       int
	browser    bool
	analyze    bool
	period     uint64
	freqMHz    float64
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate the system with a random workload.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.configPath, "config", "c", "",
		"YAML system description; the built-in echo and chorus system if empty")
	f.StringSliceVar(&runOpts.envFiles, "env", []string{".env"},
		"dotenv files to load before reading DELAYMEM_* variables")
	f.StringVar(&runOpts.dumpPath, "dump-config", "",
		"write the effective configuration to this file")
	f.IntVarP(&runOpts.samples, "samples", "n", 10000,
		"number of samples written to every delay line")
	f.Int64Var(&runOpts.seed, "seed", 1, "seed of the workload")
	f.Uint64Var(&runOpts.maxCycles, "max-cycles", 0,
		"give up after this many cycles; 0 picks a limit from --samples")
	f.StringVar(&runOpts.record, "record", "",
		"store every bus transaction in this SQLite database")
	f.BoolVar(&runOpts.logBus, "log-bus", false,
		"print every bus transaction")
	f.BoolVar(&runOpts.monitor, "monitor", false,
		"serve the monitoring page while simulating")
	f.IntVar(&runOpts.port, "port", 0, "port of the monitoring server")
	f.BoolVar(&runOpts.browser, "browser", false,
		"open the monitoring page in a browser")

	f.BoolVar(&runOpts.analyze, "analyze-buffers", false,
		"report how full the sample and tap buffers stay")
	f.Uint64Var(&runOpts.period, "analysis-period", 0,
		"also report buffer levels every this many cycles")
	f.Float64Var(&runOpts.freqMHz, "freq", 100,
		"clock frequency in MHz used to convert cycles to time")

	rootCmd.AddCommand(runCmd)
}

func loadConfig(opts runOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}

	cfg := config.Default()

	if opts.configPath != "" {
		var err error

		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if opts.dumpPath != "" {
		if err := cfg.Save(opts.dumpPath); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func run(opts runOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	builder := platform.MakeBuilder().WithConfig(cfg)

	if opts.record != "" {
		builder = builder.WithRecorder(datarecording.New(opts.record))
	}

	p, err := builder.Build()
	if err != nil {
		return err
	}

	busy := tracing.NewBusyTimeTracer(p.Clock, tracing.KindIs("bus"))
	latency := tracing.NewTotalTimeTracer(p.Clock, tracing.KindIs("bus"))

	if p.MemoryLink != nil {
		tracing.CollectTrace(p.MemoryLink, busy)
		tracing.CollectTrace(p.MemoryLink, latency)
	}

	if opts.logBus {
		logger := log.New(os.Stderr, "", 0)
		for _, line := range p.DelayLines {
			tracing.CollectTrace(line.BusLink(),
				tracing.NewLogTracer(p.Clock, logger, tracing.KindIs("bus")))
		}
	}

	atexit.Register(p.Terminate)

	if opts.analyze {
		analyzer := bottleneckanalysis.MakeBufferAnalyzerBuilder().
			WithTimeTeller(p.Clock).
			WithPeriod(opts.period).
			WithReportAtExit().
			Build()

		for _, buf := range p.Buffers() {
			analyzer.AnalyzeBuffer(buf)
		}
	}

	w := platform.NewWorkload(p, opts.samples, opts.seed)

	limit := opts.maxCycles
	if limit == 0 {
		limit = uint64(opts.samples+1) * 2000
	}

	done := w.Done
	if opts.monitor {
		done = startMonitor(p, w, opts)
	}

	runErr := p.Clock.RunUntil(done, limit)
	p.Terminate()

	report(p, w, busy, latency, timing.Freq(opts.freqMHz)*timing.MHz)

	if runErr != nil {
		return runErr
	}

	for _, r := range w.Reports() {
		if r.Mismatches > 0 {
			return fmt.Errorf("%s: %d tap outputs do not match",
				r.Name, r.Mismatches)
		}
	}

	return nil
}
