package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/history"
	"github.com/five82/mediadeck/internal/intake"
	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/provider"
	"github.com/five82/mediadeck/internal/tasks"
)

// Services bundles the long-lived collaborators shared by the TUI and the
// CLI commands.
type Services struct {
	Config   config.Config
	Logger   *slog.Logger
	Provider *provider.Client
	Backend  *backend.Client
	History  *history.Store
	Intake   *intake.Intake
	Tasks    *tasks.Manager
}

// ServiceOptions tunes NewServices.
type ServiceOptions struct {
	Notifier       tasks.Notifier
	OnUnauthorized func(loginURL string)
	// HTTPClient, when set, carries every provider and backend request.
	HTTPClient *http.Client
	// SkipHistory leaves History nil, for commands that never record.
	SkipHistory bool
}

// NewServices wires clients, stores and the task manager from cfg.
func NewServices(cfg config.Config, logger *slog.Logger, opts ServiceOptions) (*Services, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Services{Config: cfg, Logger: logger}

	prov, err := provider.NewClient(cfg.BaseURL, cfg.APIKey, provider.WithHTTPClient(opts.HTTPClient))
	if err != nil {
		return nil, fmt.Errorf("init provider client: %w", err)
	}
	s.Provider = prov

	backendOpts := []backend.Option{
		backend.WithSession(backend.Session{AccessToken: cfg.SessionCookie, CSRFToken: cfg.CSRFToken}),
	}
	if opts.OnUnauthorized != nil {
		backendOpts = append(backendOpts, backend.WithUnauthorizedHandler(opts.OnUnauthorized))
	}
	if opts.HTTPClient != nil {
		// The backend attaches its own cookie jar; keep it off the shared client.
		hc := *opts.HTTPClient
		hc.Jar = nil
		backendOpts = append(backendOpts, backend.WithHTTPClient(&hc))
	}
	lib, err := backend.NewClient(cfg.BackendURL, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("init backend client: %w", err)
	}
	s.Backend = lib

	if !opts.SkipHistory {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			// History is a convenience; run without it.
			logger.Warn("history disabled",
				slog.String("path", cfg.HistoryPath()),
				slog.String("error", err.Error()),
			)
		} else {
			s.History = store
		}
	}

	s.Intake = intake.New(cfg.ImageThresholdBytes, cfg.ImageMaxDimension, logging.NewComponentLogger(logger, "intake"))

	managerOpts := []tasks.Option{
		tasks.WithLibrary(lib),
		tasks.WithLogger(logger),
	}
	if s.History != nil {
		managerOpts = append(managerOpts, tasks.WithRecorder(s.History))
	}
	if opts.Notifier != nil {
		managerOpts = append(managerOpts, tasks.WithNotifier(opts.Notifier))
	}
	s.Tasks = tasks.NewManager(prov, tasks.OptionsFromConfig(cfg), managerOpts...)
	return s, nil
}

// Close stops the task manager and releases the history database.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Tasks != nil {
		s.Tasks.Close()
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SessionExpiredNotifier returns an unauthorized handler that reports the
// expired library session through n.
func SessionExpiredNotifier(n tasks.Notifier) func(loginURL string) {
	return func(loginURL string) {
		n.Notify(tasks.Event{
			At:      time.Now(),
			Level:   tasks.LevelWarning,
			Message: "Library session expired: run `mediadeck login` or sign in at " + loginURL,
		})
	}
}

// RequestFromConfig builds a task request from the saved compose defaults.
func RequestFromConfig(cfg config.Config, prompt string) tasks.Request {
	return tasks.Request{
		Model:  cfg.Model,
		Prompt: prompt,
		Options: provider.Options{
			Variant:     cfg.SoraVariant,
			AspectRatio: cfg.AspectRatio,
			Duration:    cfg.Duration,
			HD:          cfg.HD,
			Watermark:   cfg.Watermark,
			Private:     cfg.Private,
			NotifyHook:  cfg.NotifyHook,
		},
	}
}
