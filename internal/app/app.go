package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/prefs"
	"github.com/five82/mediadeck/internal/state"
	"github.com/five82/mediadeck/internal/tasks"
	"github.com/five82/mediadeck/internal/ui"
)

// Options configure the mediadeck TUI.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses default ~/.config/mediadeck/prefs.toml
	PollEvery  time.Duration // backend refresh interval; zero uses default
}

// eventBuffer bounds notifications waiting for the UI. Older events are
// dropped when the UI falls behind.
const eventBuffer = 64

// Run boots the mediadeck TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	userPrefs := prefs.Load(opts.PrefsPath)

	// The terminal belongs to the UI, so logs only go to the file.
	logger, closer, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: []string{cfg.LogPath()},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = closer.Close() }()

	events := make(chan tasks.Event, eventBuffer)
	notifier := tasks.NotifierFunc(func(e tasks.Event) {
		select {
		case events <- e:
		default:
		}
	})

	svc, err := NewServices(cfg, logger, ServiceOptions{
		Notifier:       notifier,
		OnUnauthorized: SessionExpiredNotifier(notifier),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("mediadeck starting",
		slog.String("backend", cfg.BackendURL),
		slog.String("provider", cfg.BaseURL),
		slog.Bool("api_key", cfg.APIKey != ""),
	)

	store := &state.Store{}
	poller := NewPoller(store, svc.Backend, opts.PollEvery, logger)
	poller.Start(ctx)

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	return ui.Run(ui.Options{
		Context:    ctx,
		Config:     &cfg,
		ConfigPath: configPath,
		Tasks:      svc.Tasks,
		Intake:     svc.Intake,
		Library:    svc.Backend,
		Images:     svc.Backend,
		Store:      store,
		Poller:     poller,
		Events:     events,
		LogPath:    cfg.LogPath(),
		PollTick:   ui.DefaultUIInterval,
		Prefs:      userPrefs,
		PrefsPath:  opts.PrefsPath,
	})
}
