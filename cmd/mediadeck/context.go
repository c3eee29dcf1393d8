package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/app"
	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/config"
	"github.com/five82/mediadeck/internal/logging"
)

type commandContext struct {
	configFlag *string
	prefsFlag  *string

	configOnce sync.Once
	config     config.Config
	configErr  error

	// httpClient overrides the default transport for provider and backend
	// requests. Nil in normal use.
	httpClient *http.Client
}

// sessionWatch remembers the login URL reported when the backend rejects the
// saved session.
type sessionWatch struct {
	mu       sync.Mutex
	loginURL string
}

func (w *sessionWatch) handle(loginURL string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loginURL = loginURL
}

func (w *sessionWatch) url() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loginURL
}

func newCommandContext(configFlag, prefsFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, prefsFlag: prefsFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) prefsPath() string {
	if c.prefsFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.prefsFlag)
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// updateConfig edits the config file in place. Environment overrides stay
// out of the file.
func (c *commandContext) updateConfig(fn func(*config.Config) error) (config.Config, error) {
	return config.Update(c.configPath(), fn)
}

// logger writes to the mediadeck log file, and also to stderr when verbose.
func (c *commandContext) logger(cfg config.Config, verbose bool) (*slog.Logger, io.Closer, error) {
	paths := []string{cfg.LogPath()}
	if verbose {
		paths = append(paths, "stderr")
	}
	logger, closer, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: paths,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, closer, nil
}

// withServices builds the shared services for one command and tears them
// down afterwards.
func (c *commandContext) withServices(cmd *cobra.Command, opts app.ServiceOptions, fn func(*app.Services) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, closer, err := c.logger(cfg, verbose)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	watch := &sessionWatch{}
	next := opts.OnUnauthorized
	opts.OnUnauthorized = func(loginURL string) {
		watch.handle(loginURL)
		if next != nil {
			next(loginURL)
		}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = c.httpClient
	}

	svc, err := app.NewServices(cfg, logger, opts)
	if err != nil {
		return err
	}
	err = fn(svc)
	if closeErr := svc.Close(); closeErr != nil {
		logger.Warn("shutdown", slog.String("error", closeErr.Error()))
	}
	loginURL := watch.url()
	if errors.Is(err, backend.ErrUnauthorized) {
		return wrapBackendError(err, loginURL)
	}
	if loginURL != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: library session expired, sign in with `mediadeck login` or at %s\n", loginURL)
	}
	return err
}

// withBackend runs fn with a library backend client using the saved session.
func (c *commandContext) withBackend(fn func(*backend.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	watch := &sessionWatch{}
	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithSession(backend.Session{AccessToken: cfg.SessionCookie, CSRFToken: cfg.CSRFToken}),
		backend.WithUnauthorizedHandler(watch.handle),
		backend.WithHTTPClient(c.backendHTTPClient()))
	if err != nil {
		return fmt.Errorf("init backend client: %w", err)
	}
	return wrapBackendError(fn(client), watch.url())
}

// backendHTTPClient returns a copy of the override client so the backend's
// cookie jar stays private, or nil for the default.
func (c *commandContext) backendHTTPClient() *http.Client {
	if c.httpClient == nil {
		return nil
	}
	hc := *c.httpClient
	hc.Jar = nil
	return &hc
}
