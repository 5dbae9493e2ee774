package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/orbctl/internal/console"
	"github.com/kokistudios/orbctl/internal/filter"
	"github.com/kokistudios/orbctl/internal/ui"
	"github.com/kokistudios/orbctl/internal/view"
)

func viewNames() []string {
	var names []string
	for _, v := range view.All() {
		names = append(names, v.Name)
	}
	return names
}

func viewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Describe the views and the filters each one accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.RenderMarkdown(viewsMarkdown(view.All()))
			return nil
		},
	}
}

func viewsMarkdown(views []view.View) string {
	var b strings.Builder
	b.WriteString("# Views\n\n")
	b.WriteString("Filter expressions: `Name=value` uses the filter's default matching, `Name==value` matches exactly, `Name~value` matches substrings. Separate multi-select values with commas.\n\n")
	for _, v := range views {
		fmt.Fprintf(&b, "## %s\n\n`%s` · route `%s`\n\n", v.Title, v.Name, v.Route)
		b.WriteString("| Filter | Field | Kind | Default match | Options |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, d := range v.Definitions {
			match := "substring"
			if d.Exact {
				match = "exact"
			}
			fmt.Fprintf(&b, "| %s | `%s` | %s | %s | %s |\n", d.Name, d.Field, d.Kind, match, strings.Join(d.Options, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func listCmd() *cobra.Command {
	var exprs []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <view>",
		Short: "List a view through its saved filters",
		Long:  "Fetch every item of a view and show those passing the session's saved filters for that view. --filter adds filters for this call only.",
		Example: `  orbctl list sinks
  orbctl list sinks --filter Status=active,error
  orbctl list agents --filter 'Tags==env:prod' --json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: viewNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			extra, err := parseFilters(v, exprs)
			if err != nil {
				return err
			}

			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			spinner := ui.NewSpinner(fmt.Sprintf("Fetching %s...", v.Name))
			items, active, err := c.List(cmd.Context(), v, extra)
			spinner.Stop()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			if len(active) > 0 {
				ui.Info(fmt.Sprintf("Filters: %s", joinActive(active)))
			}
			if len(items) == 0 {
				ui.EmptyState(fmt.Sprintf("No %s match.", v.Name))
				return nil
			}
			ui.Table(headers(v), rows(v, items))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&exprs, "filter", "f", nil, "Extra filter for this call, e.g. Status=active (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matching items as JSON")
	return cmd
}

func showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <view> <id>",
		Short: "Show one item of a view",
		Example: `  orbctl show agents 0d3f1c2e-6b9a-4c52-9f3e-1a2b3c4d5e6f
  orbctl show sinks 9b7e2d40-1c55-4f0a-8d63-52c1e0a7f9b2 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			client := console.NewClient(s.Config, ui.Logger)

			spinner := ui.NewSpinner(fmt.Sprintf("Fetching %s %s...", v.Name, args[1]))
			item, err := client.Get(cmd.Context(), v.Resource, args[1])
			spinner.Stop()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(item)
			}

			ui.SectionHeader(fmt.Sprintf("%s %s", v.Title, args[1]))
			for _, col := range v.Columns {
				value := view.Cell(item, col.Field)
				if col.Field == "state" {
					value = ui.State(value)
				}
				ui.KeyValue(fmt.Sprintf("%-16s", col.Header), value)
			}
			data, err := yaml.Marshal(map[string]any(item))
			if err != nil {
				return fmt.Errorf("failed to marshal item: %w", err)
			}
			ui.SectionHeader("Raw")
			fmt.Print(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the item as JSON")
	return cmd
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <view>",
		Short: "Show a live, filterable list of a view",
		Long:  "Poll a view and show the items passing its saved filters. Filters edited here are saved to the session. Keys: / add filter, x remove last, c clear, q quit.",
		Example: `  orbctl watch agents
  orbctl watch sinks --interval 5s`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: viewNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}

			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			if interval <= 0 {
				interval = time.Duration(c.Store.Config.Watch.PollSeconds) * time.Second
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			spinner := ui.NewSpinner(fmt.Sprintf("Fetching %s...", v.Name))
			seed, err := v.Fetch(ctx, c.Client)
			spinner.Stop()
			if err != nil {
				ui.Warning(fmt.Sprintf("Suggestions unavailable: %v", err))
			}

			results, err := c.Watch(ctx, v, interval)
			if err != nil {
				return err
			}

			cols := make([]ui.WatchColumn, len(v.Columns))
			for i, col := range v.Columns {
				cols[i] = ui.WatchColumn{Header: col.Header, Width: columnWidth(col)}
			}

			return ui.Watch(ui.WatchConfig{
				Title:       v.Title,
				Columns:     cols,
				Row:         func(item filter.Item) []string { return row(v, item) },
				Results:     results,
				Filters:     c.Filters.Subscribe(ctx),
				Suggestions: suggestions(v, seed),
				Add: func(expr string) error {
					a, err := v.ParseFilter(expr)
					if err != nil {
						return err
					}
					return c.Filters.Add(a)
				},
				RemoveLast: func() error {
					return c.Filters.RemoveAt(len(c.Filters.Filters()) - 1)
				},
				Clear: c.Filters.Clear,
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default watch.poll_seconds)")
	return cmd
}

func filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage the saved filters of a view",
		Long:  "Show, add, remove, and clear the filters saved for a view in the current session. Filters are matched together: an item is listed only if it passes all of them.",
	}
	cmd.AddCommand(filterShowCmd())
	cmd.AddCommand(filterAddCmd())
	cmd.AddCommand(filterRemoveCmd())
	cmd.AddCommand(filterClearCmd())
	return cmd
}

func filterShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "show <view>",
		Short:     "Show a view's saved filters",
		Args:      cobra.ExactArgs(1),
		ValidArgs: viewNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			var active []filter.Active
			if err := c.Do(v, func() error {
				active = c.Filters.Filters()
				return nil
			}); err != nil {
				return err
			}
			printFilters(v, active)
			return nil
		},
	}
}

func filterAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <view> <expr>...",
		Short: "Add filters to a view",
		Example: `  orbctl filter add sinks Status=active,error
  orbctl filter add agents 'Tags==env:prod' Name~edge
  orbctl filter add policies 'Usage=not in use'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			added, err := parseFilters(v, args[1:])
			if err != nil {
				return err
			}
			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			var active []filter.Active
			if err := c.Do(v, func() error {
				for _, a := range added {
					if err := c.Filters.Add(a); err != nil {
						return err
					}
				}
				active = c.Filters.Filters()
				return nil
			}); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Added %d filter(s) to %s", len(added), v.Name))
			printFilters(v, active)
			return nil
		},
	}
}

func filterRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <view> <index|expr>",
		Short: "Remove a filter by index or by expression",
		Example: `  orbctl filter remove sinks 0
  orbctl filter remove sinks Status=active,error`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			var removed filter.Active
			err = c.Do(v, func() error {
				current := c.Filters.Filters()
				if i, convErr := strconv.Atoi(args[1]); convErr == nil {
					if i < 0 || i >= len(current) {
						return fmt.Errorf("no filter at index %d (%s has %d)", i, v.Name, len(current))
					}
					removed = current[i]
					return c.Filters.RemoveAt(i)
				}
				a, err := v.ParseFilter(args[1])
				if err != nil {
					return err
				}
				i := c.Filters.Find(a.Value, a.Name)
				if i < 0 {
					return fmt.Errorf("no saved filter %s on %s", a, v.Name)
				}
				removed = current[i]
				return c.Filters.FindAndRemove(a.Value, a.Name)
			})
			if err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Removed %s from %s", removed, v.Name))
			return nil
		},
	}
}

func filterClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:       "clear <view>",
		Short:     "Remove every saved filter of a view",
		Args:      cobra.ExactArgs(1),
		ValidArgs: viewNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := view.Lookup(args[0])
			if err != nil {
				return err
			}
			if !yes {
				proceed, err := ui.Confirm(fmt.Sprintf("Clear all filters on %s?", v.Name))
				if err != nil {
					return err
				}
				if !proceed {
					ui.Info("Cancelled.")
					return nil
				}
			}
			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Do(v, c.Filters.Clear); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Cleared filters on %s", v.Name))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func parseFilters(v view.View, exprs []string) ([]filter.Active, error) {
	out := make([]filter.Active, 0, len(exprs))
	for _, e := range exprs {
		a, err := v.ParseFilter(e)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func printFilters(v view.View, active []filter.Active) {
	if len(active) == 0 {
		ui.EmptyState(fmt.Sprintf("No filters on %s.", v.Name))
		return
	}
	var rows [][]string
	for i, a := range active {
		rows = append(rows, []string{strconv.Itoa(i), a.Name, a.Field, a.Value.String(), matchMode(a)})
	}
	ui.Table([]string{"#", "FILTER", "FIELD", "VALUE", "MATCH"}, rows)
}

func matchMode(a filter.Active) string {
	switch {
	case a.Exact == nil:
		return "default"
	case *a.Exact:
		return "exact"
	default:
		return "substring"
	}
}

func joinActive(active []filter.Active) string {
	parts := make([]string, len(active))
	for i, a := range active {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func headers(v view.View) []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Header
	}
	return out
}

func row(v view.View, item filter.Item) []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = view.Cell(item, c.Field)
	}
	return out
}

func rows(v view.View, items []filter.Item) [][]string {
	out := make([][]string, 0, len(items))
	for _, item := range items {
		out = append(out, row(v, item))
	}
	return out
}

func columnWidth(c view.Column) int {
	switch c.Field {
	case "name", "description":
		return 28
	case "tags", "combined_tags", "agent_tags":
		return 36
	}
	return len(c.Header) + 8
}

// suggestions builds ready-to-submit expressions for the filter prompt.
func suggestions(v view.View, items []filter.Item) []string {
	var out []string
	for _, d := range v.WithSuggestions(items) {
		for _, s := range d.Suggestions() {
			out = append(out, d.Name+"="+s)
		}
	}
	return out
}
