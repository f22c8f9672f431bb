package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"

	"smart-plug/config"
	"smart-plug/internal/application"
	"smart-plug/internal/domain"
	"smart-plug/internal/infra/homeassistant"
	"smart-plug/internal/infra/httpapi"
	"smart-plug/internal/infra/metrics"
	"smart-plug/internal/infra/pushover"
	"smart-plug/internal/infra/schedule"
	"smart-plug/internal/infra/tuya"
	"smart-plug/internal/infra/vesync"
)

type options struct {
	Config  string `short:"c" long:"config" default:"config.yaml" description:"path to config file"`
	Verbose bool   `short:"v" long:"verbose" description:"log at debug level"`
}

func main() {
	opts := &options{}
	parser := flags.NewParser(opts, flags.Default)

	parser.AddCommand("serve", "Run the HTTP and schedule triggers",
		"Serves /plug/on, /plug/off, /plug, /health and /metrics and runs configured schedules.",
		&serveCommand{opts: opts})
	parser.AddCommand("on", "Turn the plug on", "Performs one control attempt towards on.",
		&powerCommand{opts: opts, power: domain.PowerOn})
	parser.AddCommand("off", "Turn the plug off", "Performs one control attempt towards off.",
		&powerCommand{opts: opts, power: domain.PowerOff})
	parser.AddCommand("status", "Show the plug's reported status", "Reads the device list without toggling.",
		&statusCommand{opts: opts})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	service  *application.PlugService
	registry *prometheus.Registry
}

func newApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger := setupLogger(cfg.Log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	var notifier application.Notifier
	if cfg.Pushover.Enabled {
		notifier = pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey)
	} else {
		notifier = &application.NoopNotifier{}
	}

	service := application.NewPlugService(
		createDirectory(cfg),
		application.Credentials{Identity: cfg.Identity(), Secret: cfg.Secret()},
		cfg.Plug.ID,
		notifier,
		metrics.NewRecorder(registry),
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		registry: registry,
	}, nil
}

func createDirectory(cfg *config.Config) application.DeviceDirectory {
	switch cfg.Backend {
	case config.BackendHomeAssistant:
		return homeassistant.NewClient(cfg.HomeAssistant.BaseURL, cfg.Retry.MaxAttempts)
	case config.BackendTuya:
		if cfg.Tuya.BaseURL != "" {
			return tuya.NewClientWithURL(cfg.Tuya.BaseURL, cfg.Retry.MaxAttempts)
		}
		return tuya.NewClient(cfg.Tuya.Region, cfg.Retry.MaxAttempts)
	default:
		return vesync.NewClientWithURL(cfg.VeSync.BaseURL, cfg.VeSync.TimeZone, cfg.Retry.MaxAttempts)
	}
}

type serveCommand struct {
	opts *options
}

func (c *serveCommand) Execute(_ []string) error {
	a, err := newApp(c.opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		a.logger.Info("shutting down")
		cancel()
	}()

	entries := make([]schedule.Entry, 0, len(a.cfg.Schedule))
	for _, e := range a.cfg.Schedule {
		power, _ := domain.ParsePower(e.Power)
		entries = append(entries, schedule.Entry{Spec: e.Cron, Power: power})
	}
	scheduler, err := schedule.New(a.service, entries, a.logger)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	server := httpapi.NewServer(a.service, httpapi.Options{
		Addr:      a.cfg.HTTP.Addr,
		AuthToken: a.cfg.HTTP.AuthToken,
		Limiter:   httpapi.NewRateLimiter(a.cfg.HTTP.RateLimit, a.cfg.RateWindow(), a.cfg.HTTP.BehindProxy),
		Metrics:   metrics.Handler(a.registry),
	}, a.logger)

	a.logger.Info("starting smart plug service",
		"backend", a.cfg.Backend,
		"device", a.cfg.Plug.ID,
	)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting http trigger: %w", err)
	}
	scheduler.Start()

	<-ctx.Done()

	scheduler.Stop()
	a.logger.Info("scheduler stopped")

	if err := server.Stop(); err != nil {
		return fmt.Errorf("stopping http trigger: %w", err)
	}
	a.logger.Info("HTTP trigger stopped")

	return nil
}

type powerCommand struct {
	opts  *options
	power domain.Power
}

func (c *powerCommand) Execute(_ []string) error {
	a, err := newApp(c.opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	outcome, err := a.service.SetPower(ctx, c.power)
	fmt.Println(outcome.Message())
	if err != nil {
		return err
	}
	return nil
}

type statusCommand struct {
	opts *options
}

func (c *statusCommand) Execute(_ []string) error {
	a, err := newApp(c.opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	device, found, err := a.service.Status(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %s", a.service.TargetID(), domain.OutcomePlugNotFound.Message())
	}

	fmt.Printf("%s (%s): %s\n", device.Name, device.ID, device.Status)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
