package filter

import (
	"context"

	"github.com/charmbracelet/log"
)

// OrphanPolicy decides what happens to an active filter whose name matches
// no definition of the current view.
type OrphanPolicy int

const (
	// PassThrough ignores orphaned filters.
	PassThrough OrphanPolicy = iota
	// FailClosed hides every item while an orphaned filter is active.
	FailClosed
)

type options struct {
	orphans OrphanPolicy
	logger  *log.Logger
}

type Option func(*options)

func WithOrphanPolicy(p OrphanPolicy) Option {
	return func(o *options) { o.orphans = p }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{orphans: PassThrough}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	return o
}

type binding struct {
	active Active
	def    Definition
	exact  bool
}

// Apply returns the items that pass every active filter. With no active
// filters the input slice itself is returned.
func Apply(items []Item, active []Active, defs []Definition, opts ...Option) []Item {
	if len(active) == 0 {
		return items
	}
	o := buildOptions(opts)

	bound := make([]binding, 0, len(active))
	for _, a := range active {
		def, ok := Find(defs, a.Name)
		if !ok {
			o.logger.Warn("filter has no definition in this view", "filter", a.Name, "field", a.Field)
			if o.orphans == FailClosed {
				return []Item{}
			}
			continue
		}
		exact := def.Exact
		if a.Exact != nil {
			exact = *a.Exact
		}
		bound = append(bound, binding{active: a, def: def, exact: exact})
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if matchesAll(item, bound) {
			out = append(out, item)
		}
	}
	return out
}

func matchesAll(item Item, bound []binding) bool {
	for _, b := range bound {
		if !b.def.Predicate.Match(item, b.def.Field, b.active.Value, b.exact) {
			return false
		}
	}
	return true
}

// FilteredList recomputes Apply whenever either input emits, once both have
// emitted at least once. Each emission is a complete result. The output is
// closed when ctx is done or both inputs are closed.
func FilteredList(ctx context.Context, items <-chan []Item, filters <-chan []Active, defs []Definition, opts ...Option) <-chan []Item {
	out := make(chan []Item)
	go func() {
		defer close(out)
		var (
			latestItems   []Item
			latestFilters []Active
			haveItems     bool
			haveFilters   bool
		)
		for items != nil || filters != nil {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-items:
				if !ok {
					items = nil
					continue
				}
				latestItems, haveItems = v, true
			case v, ok := <-filters:
				if !ok {
					filters = nil
					continue
				}
				latestFilters, haveFilters = v, true
			}
			if !haveItems || !haveFilters {
				continue
			}
			select {
			case out <- Apply(latestItems, latestFilters, defs, opts...):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
