package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/orbctl/internal/console"
	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/view"
)

// Server exposes the console's views and filters as MCP tools.
type Server struct {
	console *console.Console
	server  *mcp.Server
}

// NewServer creates a new orbctl MCP server.
func NewServer(c *console.Console, version string) *Server {
	s := &Server{console: c}

	impl := &mcp.Implementation{
		Name:    "orbctl",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orb_views",
		Description: "List the console views (agents, groups, policies, datasets, sinks) with their routes and the filters each one accepts. Call this first to learn filter names and allowed options.",
	}, s.handleViews)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "orb_list",
		Description: "List the items of a view with its saved filters applied. Extra filters given here narrow the result " +
			"for this call only and are not saved. Filter syntax: Name=value, Name==value (exact), Name~value (substring); " +
			"multi-select values are comma separated, tags are key:value.",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orb_filters",
		Description: "Show the saved filters of a view in the current console session, in the order they were added.",
	}, s.handleFilters)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orb_filter_add",
		Description: "Save a filter on a view. It stays active for the session until removed or cleared, and is seen by orbctl list and orbctl watch.",
	}, s.handleFilterAdd)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orb_filter_remove",
		Description: "Remove a saved filter from a view, either by its index as shown by orb_filters or by the same expression used to add it.",
	}, s.handleFilterRemove)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orb_filter_clear",
		Description: "Remove every saved filter from a view.",
	}, s.handleFilterClear)
}

// ViewsArgs defines the input for orb_views.
type ViewsArgs struct{}

// FilterInfo describes a filter a view accepts.
type FilterInfo struct {
	Name      string   `json:"name"`
	Field     string   `json:"field"`
	Predicate string   `json:"predicate"`
	Kind      string   `json:"kind"`
	Options   []string `json:"options,omitempty"`
	Exact     bool     `json:"exact,omitempty"`
}

// ViewInfo describes a view.
type ViewInfo struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Route   string       `json:"route"`
	Filters []FilterInfo `json:"filters"`
}

// ViewsResult is the output of orb_views.
type ViewsResult struct {
	Views []ViewInfo `json:"views"`
}

func (s *Server) handleViews(ctx context.Context, req *mcp.CallToolRequest, args ViewsArgs) (*mcp.CallToolResult, any, error) {
	out := ViewsResult{}
	for _, v := range view.All() {
		info := ViewInfo{Name: v.Name, Title: v.Title, Route: v.Route}
		for _, d := range v.Definitions {
			info.Filters = append(info.Filters, FilterInfo{
				Name:      d.Name,
				Field:     d.Field,
				Predicate: d.Predicate.String(),
				Kind:      d.Kind.String(),
				Options:   d.Options,
				Exact:     d.Exact,
			})
		}
		out.Views = append(out.Views, info)
	}
	return nil, out, nil
}

// ListArgs defines the input for orb_list.
type ListArgs struct {
	View    string   `json:"view" jsonschema:"View name or route (e.g. sinks or /pages/sinks)"`
	Filters []string `json:"filters,omitempty" jsonschema:"Extra filters for this call only (e.g. Status=active,error or Tags==env:prod)"`
	Limit   int      `json:"limit,omitempty" jsonschema:"Maximum number of items to return (default 50)"`
}

// ActiveFilter is a filter as reported to clients.
type ActiveFilter struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Field string `json:"field"`
	Value any    `json:"value"`
	Match string `json:"match"` // default, exact or substring
}

// ListResult is the output of orb_list.
type ListResult struct {
	View      string         `json:"view"`
	Total     int            `json:"total"`
	Returned  int            `json:"returned"`
	Filters   []ActiveFilter `json:"filters"`
	Items     []filter.Item  `json:"items"`
	Truncated bool           `json:"truncated,omitempty"`
}

func (s *Server) handleList(ctx context.Context, req *mcp.CallToolRequest, args ListArgs) (*mcp.CallToolResult, any, error) {
	v, err := view.Lookup(args.View)
	if err != nil {
		return nil, nil, err
	}
	var extra []filter.Active
	for _, expr := range args.Filters {
		a, err := v.ParseFilter(expr)
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, a)
	}

	items, active, err := s.console.List(ctx, v, extra)
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", v.Name, err)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	out := ListResult{View: v.Name, Total: len(items), Filters: describe(active), Items: items}
	if len(items) > limit {
		out.Items = items[:limit]
		out.Truncated = true
	}
	out.Returned = len(out.Items)
	return nil, out, nil
}

// ViewArgs selects a view.
type ViewArgs struct {
	View string `json:"view" jsonschema:"View name or route (e.g. agents or /pages/fleet/agents)"`
}

// FiltersResult reports a view's saved filters.
type FiltersResult struct {
	View       string         `json:"view"`
	Route      string         `json:"route"`
	SearchName string         `json:"search_name,omitempty"`
	Filters    []ActiveFilter `json:"filters"`
	Message    string         `json:"message,omitempty"`
}

func (s *Server) handleFilters(ctx context.Context, req *mcp.CallToolRequest, args ViewArgs) (*mcp.CallToolResult, any, error) {
	return s.mutate(args.View, "", func(view.View) error { return nil })
}

// FilterAddArgs defines the input for orb_filter_add.
type FilterAddArgs struct {
	View   string `json:"view" jsonschema:"View name or route"`
	Filter string `json:"filter" jsonschema:"Filter expression, e.g. Status=active,error or Tags==env:prod or Name~edge"`
}

func (s *Server) handleFilterAdd(ctx context.Context, req *mcp.CallToolRequest, args FilterAddArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Filter) == "" {
		return nil, nil, fmt.Errorf("filter is required")
	}
	return s.mutate(args.View, "Filter added", func(v view.View) error {
		a, err := v.ParseFilter(args.Filter)
		if err != nil {
			return err
		}
		return s.console.Filters.Add(a)
	})
}

// FilterRemoveArgs defines the input for orb_filter_remove.
type FilterRemoveArgs struct {
	View   string `json:"view" jsonschema:"View name or route"`
	Index  *int   `json:"index,omitempty" jsonschema:"Index of the filter as listed by orb_filters"`
	Filter string `json:"filter,omitempty" jsonschema:"Expression of the filter to remove, as it was added"`
}

func (s *Server) handleFilterRemove(ctx context.Context, req *mcp.CallToolRequest, args FilterRemoveArgs) (*mcp.CallToolResult, any, error) {
	if args.Index == nil && strings.TrimSpace(args.Filter) == "" {
		return nil, nil, fmt.Errorf("either index or filter is required")
	}
	return s.mutate(args.View, "Filter removed", func(v view.View) error {
		if args.Index != nil {
			n := len(s.console.Filters.Filters())
			if *args.Index < 0 || *args.Index >= n {
				return fmt.Errorf("no filter at index %d (view has %d)", *args.Index, n)
			}
			return s.console.Filters.RemoveAt(*args.Index)
		}
		a, err := v.ParseFilter(args.Filter)
		if err != nil {
			return err
		}
		if s.console.Filters.Find(a.Value, a.Name) < 0 {
			return fmt.Errorf("no saved filter matches %q", args.Filter)
		}
		return s.console.Filters.FindAndRemove(a.Value, a.Name)
	})
}

func (s *Server) handleFilterClear(ctx context.Context, req *mcp.CallToolRequest, args ViewArgs) (*mcp.CallToolResult, any, error) {
	return s.mutate(args.View, "Filters cleared", func(view.View) error {
		return s.console.Filters.Clear()
	})
}

// mutate runs fn with the console on the view and reports the resulting
// filter set.
func (s *Server) mutate(name, message string, fn func(view.View) error) (*mcp.CallToolResult, any, error) {
	v, err := view.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	out := FiltersResult{View: v.Name, Route: v.Route, Message: message}
	err = s.console.Do(v, func() error {
		if err := fn(v); err != nil {
			return err
		}
		out.Filters = describe(s.console.Filters.Filters())
		out.SearchName = s.console.Filters.SearchName()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func describe(active []filter.Active) []ActiveFilter {
	out := make([]ActiveFilter, 0, len(active))
	for i, a := range active {
		match := "default"
		if a.Exact != nil {
			match = "substring"
			if *a.Exact {
				match = "exact"
			}
		}
		var value any = a.Value.Text
		if a.Value.IsList() {
			value = a.Value.List
		}
		out = append(out, ActiveFilter{Index: i, Name: a.Name, Field: a.Field, Value: value, Match: match})
	}
	return out
}
