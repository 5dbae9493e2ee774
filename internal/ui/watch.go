package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kokistudios/orbctl/internal/filter"
)

// WatchColumn is a table column of the live list.
type WatchColumn struct {
	Header string
	Width  int
}

// WatchConfig wires a live list to its data and filter operations.
type WatchConfig struct {
	Title       string
	Columns     []WatchColumn
	Row         func(filter.Item) []string
	Results     <-chan []filter.Item
	Filters     <-chan []filter.Active
	Suggestions []string

	// Add parses and applies an expression such as "Status=active,error".
	Add        func(expr string) error
	RemoveLast func() error
	Clear      func() error
}

type watchKeys struct {
	AddFilter  key.Binding
	RemoveLast key.Binding
	Clear      key.Binding
	Submit     key.Binding
	Cancel     key.Binding
	Quit       key.Binding
}

var defaultWatchKeys = watchKeys{
	AddFilter:  key.NewBinding(key.WithKeys("/", "a"), key.WithHelp("/", "add filter")),
	RemoveLast: key.NewBinding(key.WithKeys("x", "backspace"), key.WithHelp("x", "remove last")),
	Clear:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	Submit:     key.NewBinding(key.WithKeys("enter")),
	Cancel:     key.NewBinding(key.WithKeys("esc")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type resultsMsg []filter.Item
type filtersMsg []filter.Active
type streamClosedMsg struct{}

// WatchModel is a bubbletea model showing a continuously filtered list.
type WatchModel struct {
	cfg     WatchConfig
	keys    watchKeys
	table   table.Model
	input   textinput.Model
	editing bool
	items   []filter.Item
	active  []filter.Active
	status  string
	closed  bool
}

func NewWatchModel(cfg WatchConfig) WatchModel {
	cols := make([]table.Column, len(cfg.Columns))
	for i, c := range cfg.Columns {
		w := c.Width
		if w <= 0 {
			w = len(c.Header) + 4
		}
		cols[i] = table.Column{Title: c.Header, Width: w}
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(15))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(styles)

	in := textinput.New()
	in.Placeholder = "Name=value"
	in.Prompt = "filter › "
	in.ShowSuggestions = len(cfg.Suggestions) > 0
	in.SetSuggestions(cfg.Suggestions)

	return WatchModel{cfg: cfg, keys: defaultWatchKeys, table: t, input: in}
}

func waitResults(ch <-chan []filter.Item) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return resultsMsg(v)
	}
}

func waitFilters(ch <-chan []filter.Active) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return filtersMsg(v)
	}
}

func (m WatchModel) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.cfg.Results != nil {
		cmds = append(cmds, waitResults(m.cfg.Results))
	}
	if m.cfg.Filters != nil {
		cmds = append(cmds, waitFilters(m.cfg.Filters))
	}
	return tea.Batch(cmds...)
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultsMsg:
		m.items = msg
		rows := make([]table.Row, 0, len(msg))
		for _, item := range msg {
			rows = append(rows, table.Row(m.cfg.Row(item)))
		}
		m.table.SetRows(rows)
		return m, waitResults(m.cfg.Results)

	case filtersMsg:
		m.active = msg
		return m, waitFilters(m.cfg.Filters)

	case streamClosedMsg:
		m.closed = true
		return m, nil

	case tea.WindowSizeMsg:
		h := msg.Height - 8
		if h < 3 {
			h = 3
		}
		m.table.SetHeight(h)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.AddFilter):
			m.editing = true
			m.status = ""
			return m, m.input.Focus()
		case key.Matches(msg, m.keys.RemoveLast):
			m.status = errText(call(m.cfg.RemoveLast))
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.status = errText(call(m.cfg.Clear))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m WatchModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.editing = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		expr := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		m.input.SetValue("")
		if expr != "" && m.cfg.Add != nil {
			m.status = errText(m.cfg.Add(expr))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func call(fn func() error) error {
	if fn == nil {
		return nil
	}
	return fn()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.cfg.Title))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d items", len(m.items))))
	if m.closed {
		b.WriteString(dimStyle.Render("  (stopped)"))
	}
	b.WriteString("\n")

	if len(m.active) == 0 {
		b.WriteString(dimStyle.Render("no filters"))
	} else {
		parts := make([]string, len(m.active))
		for i, a := range m.active {
			parts[i] = accentStyle.Render(a.String())
		}
		b.WriteString(strings.Join(parts, dimStyle.Render(" AND ")))
	}
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.editing {
		b.WriteString(m.input.View())
	} else if m.status != "" {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(dimStyle.Render("/ add filter • x remove last • c clear • q quit"))
	}
	b.WriteString("\n")
	return b.String()
}

// Items returns the rows currently shown.
func (m WatchModel) Items() []filter.Item { return m.items }

// Active returns the filters currently shown.
func (m WatchModel) Active() []filter.Active { return m.active }

// Watch runs the live list until the user quits.
func Watch(cfg WatchConfig) error {
	_, err := tea.NewProgram(NewWatchModel(cfg), tea.WithAltScreen()).Run()
	return err
}
