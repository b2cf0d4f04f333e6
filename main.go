package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/sirupsen/logrus"
	"github.com/thetooth/pingchart/config"
	"github.com/thetooth/pingchart/metrics"
	"github.com/thetooth/pingchart/probe"
	"github.com/thetooth/pingchart/session"
	"github.com/thetooth/pingchart/ui"
	"github.com/thetooth/pingchart/viewport"
	"golang.org/x/sync/errgroup"
)

var (
	path        string
	command     string
	tickRate    time.Duration
	batchSize   int
	replayPath  string
	follow      bool
	logPath     string
	logLevel    string
	metricsAddr string
	headlessOut bool
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [--] <ping arguments>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&path, "config", "", "Path to a JSON configuration file")
	flag.StringVar(&command, "command", "ping", "Probe executable")
	flag.DurationVar(&tickRate, "tick", 250*time.Millisecond, "Interval between reading batches of probe output")
	flag.IntVar(&batchSize, "batch", 5, "Lines of probe output consumed per tick")
	flag.StringVar(&replayPath, "replay", "", "Read captured ping output from this file instead of running the probe")
	flag.BoolVar(&follow, "follow", false, "Keep reading the replay file as it grows")
	flag.StringVar(&logPath, "log", "", "Write logs to this file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flag.StringVar(&metricsAddr, "metrics", "", "Serve prometheus metrics on this address, e.g. :9100")
	flag.BoolVar(&headlessOut, "headless", false, "Do not draw the chart, print a JSON summary when the probe finishes")
	flag.Parse()

	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Error("Unable to load configuration: ", err)
		return 1
	}

	headless := cfg.Headless || !term.IsTerminal(os.Stdout.Fd())

	logFile, err := setupLogging(cfg, headless)
	if err != nil {
		logrus.Error("Unable to set up logging: ", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, target, err := openSource(ctx, cfg)
	if err != nil {
		logrus.Error("[ SPAWN_FAIL ] ", err)
		if logFile != nil || !headless {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}

	m := metrics.New(target)
	sess := session.New(src, session.Options{
		Target:          target,
		BatchSize:       cfg.BatchSize,
		Bounds:          viewport.Bounds{MaxSeq: cfg.InitialMaxSeq, MaxLatency: cfg.InitialMaxLatency},
		SeqHeadroom:     cfg.SequenceHeadroom,
		LatencyHeadroom: cfg.LatencyHeadroom,
		Metrics:         m,
	})
	defer sess.Terminate()
	sess.Start()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		if headless {
			return runHeadless(gctx, sess, cfg.TickRate.Duration)
		}
		return runChart(gctx, sess, cfg)
	})

	if err := g.Wait(); err != nil {
		logrus.Error(err)
		return 1
	}

	return 0
}

func loadConfig() (cfg *config.Config, err error) {
	cfg = config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return
		}
	}

	// Explicit flags win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "command":
			cfg.Command = command
		case "tick":
			cfg.TickRate.Duration = tickRate
		case "batch":
			cfg.BatchSize = batchSize
		case "replay":
			cfg.Replay.Path = replayPath
		case "follow":
			cfg.Replay.Follow = follow
		case "log":
			cfg.LogFile = logPath
		case "log-level":
			cfg.LogLevel = logLevel
		case "metrics":
			cfg.MetricsAddr = metricsAddr
		case "headless":
			cfg.Headless = headlessOut
		}
	})
	if flag.NArg() > 0 {
		cfg.Args = flag.Args()
	}

	if cfg.Replay.Path == "" && len(cfg.Args) == 0 {
		return nil, errors.New("no ping arguments given, e.g. pingchart 1.1.1.1")
	}

	err = cfg.Validate()
	return
}

// setupLogging keeps the terminal clear while the chart owns it, logs go to
// the configured file or nowhere.
func setupLogging(cfg *config.Config, headless bool) (*os.File, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogFile == "" {
		if headless {
			logrus.SetOutput(os.Stderr)
		} else {
			logrus.SetOutput(io.Discard)
		}
		return nil, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(f)
	return f, nil
}

func openSource(ctx context.Context, cfg *config.Config) (probe.Source, string, error) {
	if cfg.Replay.Path != "" {
		src, err := probe.OpenFile(cfg.Replay.Path, cfg.Replay.Follow)
		return src, cfg.Replay.Path, err
	}

	d, err := probe.Start(ctx, cfg.Command, cfg.Args)
	if err != nil {
		return nil, "", err
	}
	logrus.Info("[ PROBE_START ] pid: ", d.Pid(), " command: ", cfg.Command, " ", cfg.Args)
	return d, cfg.Args[len(cfg.Args)-1], nil
}

func runChart(ctx context.Context, sess *session.Session, cfg *config.Config) error {
	p := tea.NewProgram(
		ui.New(sess, cfg.TickRate.Duration, cfg.QuitKeys),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// runHeadless drives the session on a plain ticker until the probe finishes
// or the process is interrupted, then prints the summary.
func runHeadless(ctx context.Context, sess *session.Session, tick time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()

loop:
	for sess.State() != session.Terminated {
		select {
		case <-ctx.Done():
			break loop
		case <-t.C:
			sess.Tick()
		}
	}
	sess.Terminate()

	b, err := sess.Summary().Marshal()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
