// Package view declares the list screens of the console: what they fetch,
// which columns they show, and which filters they offer.
package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/kokistudios/orbctl/internal/api"
	"github.com/kokistudios/orbctl/internal/filter"
)

// Column is one rendered field of a list.
type Column struct {
	Header string
	Field  string
}

type View struct {
	Name        string
	Title       string
	Route       string
	Resource    api.Resource
	Columns     []Column
	Definitions []filter.Definition
}

var (
	sinkStates   = []string{"active", "error", "idle", "unknown"}
	sinkBackends = []string{"prometheus", "otlphttp"}
	agentStates  = []string{"new", "online", "offline", "stale", "removed"}
	policyUsages = []string{api.UsageInUse, api.UsageNotInUse}
)

var (
	nameFilter = filter.Definition{Name: "Name", Field: "name", Predicate: filter.PredicateString, Kind: filter.KindInput}
	descFilter = filter.Definition{Name: "Description", Field: "description", Predicate: filter.PredicateString, Kind: filter.KindInput}
	tagsFilter = tagsOn("tags")
	nameColumn = Column{"NAME", "name"}
	descColumn = Column{"DESCRIPTION", "description"}
	tagsColumn = Column{"TAGS", "tags"}
)

var catalog = []View{agents, groups, policies, datasets, sinks}

func tagsOn(field string) filter.Definition {
	return filter.Definition{Name: "Tags", Field: field, Predicate: filter.PredicateTags, Kind: filter.KindAutoComplete}
}

func multi(name, field string, options []string) filter.Definition {
	return filter.Definition{Name: name, Field: field, Predicate: filter.PredicateMultiSelect, Kind: filter.KindMultiSelect, Options: options, Exact: true}
}

var agents = View{
	Name:     "agents",
	Title:    "Agents",
	Route:    "/pages/fleet/agents",
	Resource: api.Agents,
	Columns:  []Column{nameColumn, {"STATUS", "state"}, {"TAGS", "combined_tags"}, {"LAST HEARTBEAT", "ts_last_hb"}},
	Definitions: []filter.Definition{
		nameFilter,
		tagsOn("combined_tags"),
		multi("Status", "state", agentStates),
	},
}

var groups = View{
	Name:        "groups",
	Title:       "Agent Groups",
	Route:       "/pages/fleet/groups",
	Resource:    api.AgentGroups,
	Columns:     []Column{nameColumn, descColumn, tagsColumn, {"AGENTS", "matching_agents.total"}},
	Definitions: []filter.Definition{nameFilter, tagsFilter, descFilter},
}

var policies = View{
	Name:     "policies",
	Title:    "Agent Policies",
	Route:    "/pages/datasets/policies",
	Resource: api.Policies,
	Columns:  []Column{nameColumn, {"VERSION", "version"}, {"USAGE", "policy_usage"}, descColumn, tagsColumn},
	Definitions: []filter.Definition{
		nameFilter,
		tagsFilter,
		{Name: "Version", Field: "version", Predicate: filter.PredicateNumber, Kind: filter.KindNumber},
		descFilter,
		multi("Usage", "policy_usage", policyUsages),
	},
}

var datasets = View{
	Name:        "datasets",
	Title:       "Datasets",
	Route:       "/pages/datasets/list",
	Resource:    api.Datasets,
	Columns:     []Column{nameColumn, {"VALID", "valid"}, {"POLICY", "agent_policy_id"}, {"GROUP", "agent_group_id"}},
	Definitions: []filter.Definition{nameFilter},
}

var sinks = View{
	Name:     "sinks",
	Title:    "Sinks",
	Route:    "/pages/sinks",
	Resource: api.Sinks,
	Columns:  []Column{nameColumn, {"STATUS", "state"}, {"BACKEND", "backend"}, descColumn, tagsColumn},
	Definitions: []filter.Definition{
		nameFilter,
		tagsFilter,
		multi("Status", "state", sinkStates),
		multi("Backend", "backend", sinkBackends),
		descFilter,
	},
}

// All returns the catalog in menu order.
func All() []View {
	out := make([]View, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a view by name or route.
func Lookup(key string) (View, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, v := range catalog {
		if v.Name == k || v.Route == key || strings.TrimSuffix(v.Name, "s") == k {
			return v, nil
		}
	}
	names := make([]string, 0, len(catalog))
	for _, v := range catalog {
		names = append(names, v.Name)
	}
	return View{}, fmt.Errorf("unknown view: %s (valid: %s)", key, strings.Join(names, ", "))
}

// Definition returns the filter definition with the given name.
func (v View) Definition(name string) (filter.Definition, bool) {
	return filter.Find(v.Definitions, name)
}

// DefinitionFold is Definition with a case-insensitive name.
func (v View) DefinitionFold(name string) (filter.Definition, bool) {
	for _, d := range v.Definitions {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return filter.Definition{}, false
}

// WithSuggestions returns the definitions with suggestion sources drawn
// from items: tag pairs for AutoComplete filters and distinct values for
// free-text ones.
func (v View) WithSuggestions(items []filter.Item) []filter.Definition {
	out := make([]filter.Definition, len(v.Definitions))
	for i, d := range v.Definitions {
		field := d.Field
		switch d.Kind {
		case filter.KindAutoComplete:
			d.Suggest = func() []string { return filter.TagSuggestions(items, field) }
		case filter.KindInput:
			d.Suggest = func() []string { return filter.Values(items, field) }
		}
		out[i] = d
	}
	return out
}

// Fetch loads every item of the view.
func (v View) Fetch(ctx context.Context, c *api.Client) ([]filter.Item, error) {
	if v.Resource.Name == api.Policies.Name {
		return c.ListPolicies(ctx)
	}
	return c.List(ctx, v.Resource)
}
