package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/mediadeck/internal/backend"
	"github.com/five82/mediadeck/internal/logging"
	"github.com/five82/mediadeck/internal/state"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// Backend is the subset of the library backend the poller reads.
type Backend interface {
	Me(ctx context.Context) (backend.User, error)
	ListVideos(ctx context.Context, q backend.ListQuery) (backend.Page[backend.Video], error)
	ListImages(ctx context.Context, q backend.ListQuery) (backend.Page[backend.Image], error)
	StorageUsage(ctx context.Context) (backend.StorageUsage, error)
	AdminStats(ctx context.Context) (backend.SystemStats, error)
	ListUsers(ctx context.Context, q backend.UserQuery) ([]backend.UserSummary, error)
}

// Poller refreshes the state store from the backend at a fixed cadence,
// backing off while the backend is failing.
type Poller struct {
	store    *state.Store
	client   Backend
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	videos backend.ListQuery
	images backend.ListQuery
	users  backend.UserQuery

	kick chan struct{}
}

// NewPoller builds a poller; call Start to run it.
func NewPoller(store *state.Store, client Backend, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		store:    store,
		client:   client,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "poller"),
		videos:   backend.ListQuery{Page: 1, Size: 20},
		images:   backend.ListQuery{Page: 1, Size: 20},
		users:    backend.UserQuery{Limit: 100},
		kick:     make(chan struct{}, 1),
	}
}

// SetVideoQuery changes the library page shown for videos and refreshes.
func (p *Poller) SetVideoQuery(q backend.ListQuery) {
	p.mu.Lock()
	p.videos = q
	p.mu.Unlock()
	p.Refresh()
}

// SetImageQuery changes the library page shown for images and refreshes.
func (p *Poller) SetImageQuery(q backend.ListQuery) {
	p.mu.Lock()
	p.images = q
	p.mu.Unlock()
	p.Refresh()
}

// SetUserQuery changes the admin user filter and refreshes.
func (p *Poller) SetUserQuery(q backend.UserQuery) {
	p.mu.Lock()
	p.users = q
	p.mu.Unlock()
	p.Refresh()
}

// Refresh asks the running poller to refresh now. It never blocks.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Start launches the background refresh loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			case <-p.kick:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			_ = p.RefreshNow(ctx)
			timer.Reset(calculateBackoff(p.store.Snapshot().ConsecutiveFailures, p.interval))
		}
	}()
}

// RefreshNow performs one synchronous refresh and records the outcome.
func (p *Poller) RefreshNow(ctx context.Context) error {
	p.mu.Lock()
	videoQ, imageQ, userQ := p.videos, p.images, p.users
	p.mu.Unlock()

	me, err := p.client.Me(ctx)
	if err != nil {
		err = fmt.Errorf("load account: %w", err)
		p.fail(err)
		return err
	}

	var (
		refresh = state.Refresh{Me: &me}
		videos  backend.Page[backend.Video]
		images  backend.Page[backend.Image]
		usage   backend.StorageUsage
		stats   backend.SystemStats
		users   []backend.UserSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		videos, err = p.client.ListVideos(gctx, videoQ)
		return wrap("list videos", err)
	})
	g.Go(func() (err error) {
		images, err = p.client.ListImages(gctx, imageQ)
		return wrap("list images", err)
	})
	g.Go(func() (err error) {
		usage, err = p.client.StorageUsage(gctx)
		return wrap("storage usage", err)
	})
	if me.IsAdmin {
		g.Go(func() (err error) {
			stats, err = p.client.AdminStats(gctx)
			return wrap("admin stats", err)
		})
		g.Go(func() (err error) {
			users, err = p.client.ListUsers(gctx, userQ)
			return wrap("list users", err)
		})
	}
	if err := g.Wait(); err != nil {
		p.fail(err)
		return err
	}

	refresh.Videos = &videos
	refresh.Images = &images
	refresh.Usage = &usage
	if me.IsAdmin {
		refresh.Stats = &stats
		if users == nil {
			users = []backend.UserSummary{}
		}
		refresh.Users = users
	}
	p.store.Update(refresh, nil)
	return nil
}

func (p *Poller) fail(err error) {
	p.store.Update(state.Refresh{}, err)
	p.logger.Warn("backend refresh failed", slog.String("error", err.Error()))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
