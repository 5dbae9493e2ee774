// Package filterstate owns the active filter set of the console and keeps
// it persisted per route.
package filterstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/persist"
)

// DefaultRoute is the route a Service starts on.
const DefaultRoute = "/"

// record is the persisted form of an active filter. The predicate is not
// stored; it is re-attached through the view's definitions on Apply.
type record struct {
	Name  string       `json:"name"`
	Prop  string       `json:"prop"`
	Param filter.Value `json:"param"`
	Extra *bool        `json:"extra"`
}

// Service holds the active filter set. Mutations replace the set, publish
// it to subscribers, then persist it under the current route, in that order.
type Service struct {
	mu         sync.Mutex
	store      persist.Store
	logger     *log.Logger
	route      string
	searchName string
	active     []filter.Active
	subs       map[chan []filter.Active]struct{}
}

type Option func(*Service)

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRoute sets the starting route without reading storage. Call Navigate
// to rehydrate.
func WithRoute(route string) Option {
	return func(s *Service) { s.route = route }
}

func New(store persist.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		route:  DefaultRoute,
		active: []filter.Active{},
		subs:   make(map[chan []filter.Active]struct{}),
	}
	for _, fn := range opts {
		fn(s)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// Subscribe returns a channel that immediately carries the current set and
// then every later one. A slow reader only sees the newest set. The channel
// is closed once ctx is done.
func (s *Service) Subscribe(ctx context.Context) <-chan []filter.Active {
	ch := make(chan []filter.Active, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- clone(s.active)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// Filters returns a copy of the active set.
func (s *Service) Filters() []filter.Active {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.active)
}

// Route returns the route whose storage the service is bound to.
func (s *Service) Route() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// SearchName is the value of the quick-search filter ("Name" on field
// "name") found on the last rehydration.
func (s *Service) SearchName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchName
}

// Find returns the index of the first filter with the given value and name,
// or -1.
func (s *Service) Find(value filter.Value, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.active, value, name)
}

func (s *Service) Add(a filter.Active) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(clone(s.active), a)
	return s.commit(next)
}

// RemoveAt drops the filter at index i. Out of range is a no-op.
func (s *Service) RemoveAt(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.active) {
		return nil
	}
	next := make([]filter.Active, 0, len(s.active)-1)
	next = append(next, s.active[:i]...)
	next = append(next, s.active[i+1:]...)
	return s.commit(next)
}

// FindAndRemove drops the first filter with the given value and name. The
// set is left as is when none matches.
func (s *Service) FindAndRemove(value filter.Value, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.active, value, name)
	if i < 0 {
		return nil
	}
	next := make([]filter.Active, 0, len(s.active)-1)
	next = append(next, s.active[:i]...)
	next = append(next, s.active[i+1:]...)
	return s.commit(next)
}

func (s *Service) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit([]filter.Active{})
}

// Reset replaces and publishes the set without persisting it.
func (s *Service) Reset(set []filter.Active) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(set)
}

// Navigate binds the service to route and restores the set stored for it.
// Unreadable or malformed storage leaves an empty set.
func (s *Service) Navigate(route string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.route = route
	restored, err := s.load(route)
	s.searchName = ""
	for _, a := range restored {
		if a.Name == "Name" && a.Field == "name" {
			s.searchName = a.Value.Text
			break
		}
	}
	s.replace(restored)
	return err
}

// Follow calls Navigate for every route received until routes is closed or
// ctx is done.
func (s *Service) Follow(ctx context.Context, routes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-routes:
			if !ok {
				return
			}
			if err := s.Navigate(r); err != nil {
				s.logger.Error("rehydrate filters", "route", r, "err", err)
			}
		}
	}
}

// FilteredList combines items with this service's active set.
func (s *Service) FilteredList(ctx context.Context, items <-chan []filter.Item, defs []filter.Definition, opts ...filter.Option) <-chan []filter.Item {
	return filter.FilteredList(ctx, items, s.Subscribe(ctx), defs, opts...)
}

func (s *Service) load(route string) ([]filter.Active, error) {
	raw, ok, err := s.store.Get(route)
	if err != nil {
		return []filter.Active{}, fmt.Errorf("read filters for %s: %w", route, err)
	}
	if !ok || raw == "" {
		return []filter.Active{}, nil
	}
	var recs []record
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		s.logger.Warn("discarding malformed stored filters", "route", route, "err", err)
		return []filter.Active{}, nil
	}
	out := make([]filter.Active, 0, len(recs))
	for _, r := range recs {
		out = append(out, filter.Active{Name: r.Name, Field: r.Prop, Value: r.Param, Exact: r.Extra})
	}
	return out, nil
}

// commit must be called with mu held.
func (s *Service) commit(next []filter.Active) error {
	s.replace(next)

	recs := make([]record, 0, len(next))
	for _, a := range next {
		recs = append(recs, record{Name: a.Name, Prop: a.Field, Param: a.Value, Extra: a.Exact})
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if err := s.store.Set(s.route, string(data)); err != nil {
		return fmt.Errorf("persist filters for %s: %w", s.route, err)
	}
	return nil
}

// replace must be called with mu held.
func (s *Service) replace(next []filter.Active) {
	if next == nil {
		next = []filter.Active{}
	}
	s.active = next
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- clone(next)
	}
}

func indexOf(set []filter.Active, value filter.Value, name string) int {
	for i, a := range set {
		if a.Name == name && a.Value.Equal(value) {
			return i
		}
	}
	return -1
}

func clone(set []filter.Active) []filter.Active {
	out := make([]filter.Active, len(set))
	copy(out, set)
	return out
}
