package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Iron-Ham/pollrunner/internal/browser"
	"github.com/Iron-Ham/pollrunner/internal/config"
	"github.com/Iron-Ham/pollrunner/internal/event"
	"github.com/Iron-Ham/pollrunner/internal/logging"
	"github.com/Iron-Ham/pollrunner/internal/metrics"
	"github.com/Iron-Ham/pollrunner/internal/pool"
	"github.com/Iron-Ham/pollrunner/internal/report"
	"github.com/Iron-Ham/pollrunner/internal/tui"
)

// exitForced is the status used when a second interrupt arrives during a
// graceful stop.
const exitForced = 130

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the workers and vote until interrupted",
	Long: `Start the configured number of browser sessions and vote repeatedly.

Press Ctrl+C once to stop every worker and print the report. A second Ctrl+C
exits immediately without waiting for browsers to close.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDashboard bool
	runVerbose   bool
)

func init() {
	flags := runCmd.Flags()
	flags.IntP("workers", "n", config.DefaultWorkers, fmt.Sprintf("number of concurrent sessions (%d-%d)", config.MinWorkers, config.MaxWorkers))
	flags.String("url", "", "poll page URL")
	flags.Bool("headless", true, "run browsers without a window")
	flags.Bool("keep-profiles", false, "keep browser profile directories after the run")
	flags.String("report-format", report.FormatText, "report format: text, json or yaml")
	flags.String("report-file", "", "also write the report to this file")
	flags.String("metrics-listen", "", "serve /metrics, /healthz and /status on this address")
	flags.BoolVar(&runDashboard, "dashboard", true, "show the live dashboard when attached to a terminal")
	flags.BoolVarP(&runVerbose, "verbose", "v", false, "print every failed attempt")

	_ = viper.BindPFlag("pool.workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("target.url", flags.Lookup("url"))
	_ = viper.BindPFlag("browser.headless", flags.Lookup("headless"))
	_ = viper.BindPFlag("browser.keep_profiles", flags.Lookup("keep-profiles"))
	_ = viper.BindPFlag("report.format", flags.Lookup("report-format"))
	_ = viper.BindPFlag("report.file", flags.Lookup("report-file"))
	_ = viper.BindPFlag("metrics.listen", flags.Lookup("metrics-listen"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	cfg, err := config.Load()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintln(errOut, "Invalid configuration:")
			for _, e := range verrs {
				fmt.Fprintf(errOut, "  %s\n", e.Error())
			}
			fmt.Fprintln(errOut, "Run 'pollrunner config init' to create a config file.")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newRunLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	watchConfig(logger)

	// Provisioning happens once, before any worker exists
	prov := browser.NewProvisioner(cfg.Browser)
	bin, err := prov.Resolve()
	if err != nil {
		return fmt.Errorf("no browser available (set browser.bin or %s, or enable browser.auto_download): %w", config.BinaryEnvVar, err)
	}
	logger.Info("browser resolved", "path", bin, "source", string(prov.Source()))

	bus := event.NewBus(logger)
	collector := metrics.NewCollector()
	defer collector.Attach(bus)()

	p, err := pool.New(pool.OptionsFrom(cfg, bus, logger), browser.NewFactory(cfg, prov, logger))
	if err != nil {
		return err
	}

	useDashboard := runDashboard && isTerminal(os.Stdout)
	printer := tui.NewPrinter(out, runVerbose)
	if !useDashboard {
		defer printer.Attach(bus)()
		fmt.Fprintf(out, "Starting %d worker(s) against %s (run %s)\n", p.Size(), cfg.Target.URL, p.RunID())
	}

	runCtx, stopRun := context.WithCancel(cmd.Context())
	defer stopRun()
	releaseSignals := handleSignals(stopRun, errOut)
	defer releaseSignals()

	if err := p.Start(runCtx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-p.Done():
			// nothing left running, e.g. every session failed to open
			stopRun()
		}
		return nil
	})
	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, collector, p, logger)
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				logger.Error("metrics server failed", "error", err.Error())
				fmt.Fprintf(errOut, "metrics server: %v\n", err)
			}
			return nil
		})
	}
	if useDashboard {
		g.Go(func() error {
			// p.Stop blocks while the dashboard shows its stopping spinner
			stopRequested, err := tui.New(p, func() { p.Stop() }).Run(gctx)
			if errors.Is(err, tui.ErrForceQuit) {
				forceExit(errOut)
			}
			if err != nil {
				return err
			}
			if stopRequested {
				stopRun()
			}
			if !stopRequested && gctx.Err() == nil {
				// left the dashboard; keep reporting as plain lines
				defer printer.Attach(bus)()
				<-gctx.Done()
			}
			return nil
		})
	}

	runErr := g.Wait()
	rep := p.Stop()

	if err := report.Render(out, rep, cfg.Report.Format); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if cfg.Report.File != "" {
		if err := report.WriteFile(cfg.Report.File, rep, cfg.Report.Format); err != nil {
			return err
		}
		fmt.Fprintf(errOut, "Report written to %s\n", cfg.Report.File)
	}

	if runErr != nil {
		return runErr
	}
	if rep.WorkersStarted == 0 {
		return fmt.Errorf("no worker started; see the report above")
	}
	return nil
}

func newRunLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLoggerWithRotation(cfg.ResolveDir(), cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

// watchConfig logs edits to the config file. A running pool is never
// reconfigured; changes apply to the next run.
func watchConfig(logger *logging.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed, edits apply on the next run", "file", e.Name, "op", e.Op.String())
	})
	viper.WatchConfig()
}

// forceExit is a variable so tests can observe it without exiting.
var forceExit = func(errOut io.Writer) {
	fmt.Fprintln(errOut, "Forced exit")
	os.Exit(exitForced)
}

// handleSignals cancels the run on the first SIGINT/SIGTERM and exits the
// process on the second. The returned func stops listening.
func handleSignals(stop context.CancelFunc, errOut io.Writer) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		interrupts := 0
		for {
			select {
			case sig := <-sigCh:
				interrupts++
				if interrupts == 1 {
					fmt.Fprintf(errOut, "\nReceived %s, stopping workers (press Ctrl+C again to exit now)\n", sig)
					stop()
					continue
				}
				forceExit(errOut)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
