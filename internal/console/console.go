// Package console binds a console session to its filter state and the
// platform API.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/orbctl/internal/api"
	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/filterstate"
	"github.com/kokistudios/orbctl/internal/persist"
	"github.com/kokistudios/orbctl/internal/session"
	"github.com/kokistudios/orbctl/internal/store"
	"github.com/kokistudios/orbctl/internal/view"
)

// Console is an open session: its filter storage, the filter state bound
// to the current view, and an API client.
type Console struct {
	Store   *store.Store
	Session *session.Session
	Client  *api.Client
	Filters *filterstate.Service

	mu      sync.Mutex
	storage persist.Store
	logger  *log.Logger
}

// NewClient builds an API client from configuration.
func NewClient(cfg store.Config, logger *log.Logger) *api.Client {
	return api.New(cfg.API.URL,
		api.WithToken(cfg.API.Token),
		api.WithPageSize(cfg.API.PageSize),
		api.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
		api.WithRateLimit(cfg.API.RateLimit),
		api.WithLogger(logger),
	)
}

// Open opens the session's filter storage. Close releases it.
func Open(st *store.Store, sess *session.Session, client *api.Client, logger *log.Logger) (*Console, error) {
	if logger == nil {
		logger = log.Default()
	}
	storage, err := session.OpenStorage(st, sess)
	if err != nil {
		return nil, fmt.Errorf("open filter storage: %w", err)
	}
	return &Console{
		Store:   st,
		Session: sess,
		Client:  client,
		Filters: filterstate.New(storage, filterstate.WithLogger(logger)),
		storage: storage,
		logger:  logger,
	}, nil
}

// Enter navigates the filter state to the view's route and records it as
// the session's last route.
func (c *Console) Enter(v view.View) error {
	if err := c.Filters.Navigate(v.Route); err != nil {
		return err
	}
	if err := session.Touch(c.Store, c.Session.ID, v.Route); err != nil {
		c.logger.Warn("record last route", "route", v.Route, "err", err)
	}
	return nil
}

// Do runs fn with the console entered into v. Calls are serialized so
// concurrent callers never observe each other's route.
func (c *Console) Do(v view.View, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Enter(v); err != nil {
		return err
	}
	return fn()
}

// List fetches v and applies the persisted filters plus extra. extra is
// not persisted.
func (c *Console) List(ctx context.Context, v view.View, extra []filter.Active) ([]filter.Item, []filter.Active, error) {
	var active []filter.Active
	if err := c.Do(v, func() error {
		active = append(c.Filters.Filters(), extra...)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	items, err := v.Fetch(ctx, c.Client)
	if err != nil {
		return nil, nil, err
	}
	return filter.Apply(items, active, v.Definitions, filter.WithLogger(c.logger)), active, nil
}

// Watch streams v's filtered list, refreshing every interval. The stream
// reacts to filter changes made through c.Filters.
func (c *Console) Watch(ctx context.Context, v view.View, interval time.Duration) (<-chan []filter.Item, error) {
	if err := c.Enter(v); err != nil {
		return nil, err
	}
	items := c.Client.Poll(ctx, func(ctx context.Context) ([]filter.Item, error) {
		return v.Fetch(ctx, c.Client)
	}, interval)
	return c.Filters.FilteredList(ctx, items, v.Definitions, filter.WithLogger(c.logger)), nil
}

func (c *Console) Close() error {
	return c.storage.Close()
}
