// Copyright (c) 2024-2026 Carsen Klock under MIT License
// ibtop is a real-time terminal dashboard for InfiniBand adapters written in Go Lang! github.com/context-labs/ibtop
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/logger"
	"github.com/context-labs/ibtop/internal/monitor"
	"github.com/context-labs/ibtop/internal/sim"
)

// Execute runs the ibtop command line. SIGINT and SIGTERM cancel the
// session and count as a clean exit.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand(os.Stdout).ExecuteContext(ctx)
}

func newRootCommand(out io.Writer) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "ibtop",
		Short:         "Real-time InfiniBand adapter monitor",
		Long:          "ibtop shows per-port throughput, packet and error rates for every InfiniBand adapter on this host.\n\nFor more information, see https://github.com/context-labs/ibtop",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			cfg, err := configFromViper(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, out)
		},
	}
	cmd.SetVersionTemplate("ibtop version: {{.Version}}\n")
	cmd.SetOut(out)

	flags := cmd.Flags()
	flags.StringP("interval", "i", defaultInterval.String(), "Update interval, a duration (500ms, 2s) or plain milliseconds")
	flags.String("root", fabric.DefaultRoot, "Directory holding the InfiniBand adapters")
	flags.StringVar(&configFile, "config", "", "Config file (default ~/.ibtop/config.yaml)")
	flags.StringP("color", "c", "green", "UI color: green, red, blue, cyan, magenta, yellow or white")
	flags.Bool("demo", false, "Show a simulated fabric instead of real adapters")
	flags.Bool("headless", false, "Run without the TUI and print one record per tick to stdout")
	flags.Int("count", 0, "Number of samples in headless mode (0 = until interrupted)")
	flags.String("format", FormatJSON, "Headless output format: json, prom or text")
	return cmd
}

// run wires the sampler and hands it to either the headless writer or the
// terminal loop. The discovery root is checked before anything is drawn.
func run(ctx context.Context, cfg Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	table := fabric.DefaultCompatTable()
	if cfg.CompatFile != "" {
		t, err := fabric.LoadCompatFile(afero.NewReadOnlyFs(afero.NewOsFs()), cfg.CompatFile)
		if err != nil {
			return err
		}
		table = t
	}

	sampler, err := newSampler(cfg, table, logger.NewEnvLogger("ibtop"))
	if err != nil {
		return err
	}
	host := getHostInfo(ctx)

	if cfg.Headless {
		return runHeadless(ctx, cfg, sampler, host, out)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ibErrors.New(ibErrors.ErrTerminal,
			"stdout is not a terminal", "Use --headless to write samples to a pipe or file")
	}

	logfile, err := setupLogfile(cfg.LogFile)
	if err != nil {
		stderrLogger.Printf("failed to setup log file: %v", err)
	} else {
		defer logfile.Close()
	}

	th := themeFor(cfg.Color, detectLightMode(cfg.Background))
	return NewLoop(newTermuiScreen(th), sampler, cfg.Interval, th, host).Run(ctx)
}

// newSampler builds the monitor over the real sysfs tree, or over a
// simulated fabric in demo mode.
func newSampler(cfg Config, table *fabric.CompatTable, l logger.Logger) (Sampler, error) {
	opts := monitor.Options{
		Root:        cfg.Root,
		Table:       table,
		Concurrency: cfg.Concurrency,
		Smoothing:   cfg.Smoothing,
		HistorySize: cfg.HistorySize,
		Logger:      l,
	}

	if cfg.Demo {
		now := time.Now()
		fab, err := sim.New(uint64(now.UnixNano()), now)
		if err != nil {
			return nil, ibErrors.WrapWithCode(err, ibErrors.ErrStartup, "Cannot build the demo fabric", "")
		}
		opts.Root = sim.Root
		mon := monitor.New(fab.Fs(), opts)
		if err := mon.Check(); err != nil {
			return nil, err
		}
		return &demoSampler{fabric: fab, monitor: mon, clock: time.Now}, nil
	}

	mon := monitor.New(afero.NewReadOnlyFs(afero.NewOsFs()), opts)
	if err := mon.Check(); err != nil {
		return nil, err
	}
	return mon, nil
}

// demoSampler advances the simulated counters before every tick.
type demoSampler struct {
	fabric  *sim.Fabric
	monitor *monitor.Monitor
	clock   func() time.Time
}

func (d *demoSampler) Tick(ctx context.Context) (monitor.Snapshot, error) {
	if err := d.fabric.Step(d.clock()); err != nil {
		return monitor.Snapshot{}, ibErrors.Wrap(err, "Cannot advance the demo fabric")
	}
	return d.monitor.Tick(ctx)
}

func setupLogfile(logPath string) (*os.File, error) {
	if logPath == "" {
		logPath = filepath.Join(configDir(), "ibtop.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to make the log directory: %v", err)
	}
	logfile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0660)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}
	log.SetFlags(log.Ltime | log.Lshortfile)
	log.SetOutput(logfile)
	return logfile, nil
}
