package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/internal/scenario"
	"github.com/zoobzio/spanz/spanprom"
)

type runConfig struct {
	*rootConfig

	scenarioPath string
	wait         time.Duration
	maxDepth     int
	metrics      bool
}

func (cfg *runConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 's', LongName: "scenario" /*  */, Value: ffval.NewValue(&cfg.scenarioPath) /*      */, Usage: "TOML scenario file (default: built-in)", Placeholder: "FILE"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'w', LongName: "wait" /*      */, Value: ffval.NewValue(&cfg.wait) /*              */, Usage: "stop holding spans after this long (0 waits for every hold)"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "max-depth" /* */, Value: ffval.NewValueDefault(&cfg.maxDepth, 64) /* */, Usage: "report spans nested deeper than this per cursor"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "metrics" /*   */, Value: ffval.NewValue(&cfg.metrics) /*           */, Usage: "print tracer metrics in Prometheus text format", NoDefault: true})
}

// report is the JSON output of a run.
type report struct {
	Scenario string        `json:"scenario"`
	Spans    []*spanz.Node `json:"spans"`
	Stats    spanz.Stats   `json:"stats"`
}

func (cfg *runConfig) Exec(ctx context.Context, args []string) error {
	sc := scenario.Default()
	if cfg.scenarioPath != "" {
		loaded, err := scenario.Load(cfg.scenarioPath)
		if err != nil {
			return err
		}
		sc = loaded
	}

	tracer := spanz.New(spanz.WithLogger(cfg.logger), spanz.WithMaxDepth(cfg.maxDepth))
	defer tracer.Close()

	collector := spanz.NewCollector(sc.Name, 1024)
	defer collector.Close()
	tracer.AddCollector(collector)

	var reg *prometheus.Registry
	if cfg.metrics {
		metrics := spanprom.New(tracer, "spanz")
		defer metrics.Close()
		reg = prometheus.NewRegistry()
		reg.MustRegister(metrics)
	}

	runner := &scenario.Runner{Tracer: tracer, Logger: cfg.logger}

	var g run.Group

	{
		var (
			runCtx context.Context
			cancel context.CancelFunc
		)
		if cfg.wait > 0 {
			runCtx, cancel = context.WithTimeout(ctx, cfg.wait)
		} else {
			runCtx, cancel = context.WithCancel(ctx)
		}
		g.Add(func() error {
			err := runner.Run(runCtx, sc)
			if errors.Is(err, context.DeadlineExceeded) {
				cfg.logger.Info("wait elapsed, holds cut short", "wait", cfg.wait)
				err = nil
			}
			return err
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	runErr := g.Run()

	// Spans are reported even when the run was interrupted.
	tracer.Wait()
	collector.Close()

	if err := cfg.writeReport(sc.Name, spanz.BuildTree(collector.Export()), tracer.Stats()); err != nil {
		return err
	}
	if reg != nil {
		if err := cfg.writeMetrics(reg); err != nil {
			return err
		}
	}
	return runErr
}

func (cfg *runConfig) writeReport(name string, roots []*spanz.Node, stats spanz.Stats) error {
	switch cfg.output {
	case "json":
		enc := json.NewEncoder(cfg.stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(report{Scenario: name, Spans: roots, Stats: stats}); err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
	default:
		if err := spanz.Render(cfg.stdout, roots); err != nil {
			return fmt.Errorf("render tree: %w", err)
		}
		fmt.Fprintf(cfg.stdout, "\nspans started %d, ended %d, open %d\n", stats.SpansStarted, stats.SpansEnded, stats.OpenSpans)
		fmt.Fprintf(cfg.stdout, "records created %d, released %d, live %d\n", stats.RecordsCreated, stats.RecordsReleased, stats.LiveRecords)
		fmt.Fprintf(cfg.stdout, "violations %d, dropped events %d\n", stats.Violations, stats.DroppedEvents)
	}
	return nil
}

func (cfg *runConfig) writeMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(cfg.stdout)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cfg.stdout, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
