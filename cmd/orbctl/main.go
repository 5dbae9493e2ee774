package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/orbctl/internal/console"
	orbmcp "github.com/kokistudios/orbctl/internal/mcp"
	"github.com/kokistudios/orbctl/internal/session"
	"github.com/kokistudios/orbctl/internal/store"
	"github.com/kokistudios/orbctl/internal/ui"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	var noColor bool
	var logLevel string
	var sessionID string

	rootCmd := &cobra.Command{
		Use:          "orbctl",
		Short:        "orbctl: filter and browse an orb fleet from the terminal",
		Long:         "Browse agents, agent groups, policies, datasets, and sinks of an orb control plane. Filters are saved per view and per session, so every view reopens with the filters you left on it.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.Init(noColor)
			if sessionID != "" {
				if err := os.Setenv(session.EnvSession, sessionID); err != nil {
					return err
				}
			}
			if logLevel != "" {
				return ui.SetLevel(logLevel)
			}
			if s, err := store.Load(store.Home()); err == nil {
				if err := ui.SetLevel(s.Config.Log.Level); err != nil {
					ui.Warning(err.Error())
				}
			}
			return nil
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session ID to use; overrides "+session.EnvSession)

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "filter", Title: "Filter Commands:"},
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	initC := initCmd()
	initC.GroupID = "core"
	doctorC := doctorCmd()
	doctorC.GroupID = "core"
	viewsC := viewsCmd()
	viewsC.GroupID = "core"
	listC := listCmd()
	listC.GroupID = "core"
	watchC := watchCmd()
	watchC.GroupID = "core"
	showC := showCmd()
	showC.GroupID = "core"

	filterC := filterCmd()
	filterC.GroupID = "filter"

	sessionC := sessionCmd()
	sessionC.GroupID = "session"

	configC := configCmd()
	configC.GroupID = "config"

	rootCmd.AddCommand(initC)
	rootCmd.AddCommand(doctorC)
	rootCmd.AddCommand(viewsC)
	rootCmd.AddCommand(listC)
	rootCmd.AddCommand(watchC)
	rootCmd.AddCommand(showC)
	rootCmd.AddCommand(filterC)
	rootCmd.AddCommand(sessionC)
	rootCmd.AddCommand(configC)
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(mcpServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize ORBCTL_HOME directory structure",
		Long:    "Create the ORBCTL_HOME directory (~/.orbctl by default) with sessions/ and config.yaml. Run this once before using any other orbctl commands.",
		Example: "  orbctl init\n  orbctl init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			if err := store.Init(home, force); err != nil {
				return err
			}
			ui.LogoWithTagline("edge fleet console")
			ui.Success("orbctl initialized")
			ui.Detail("Home:", home)
			ui.Info("Point it at your control plane: orbctl config set api.url https://orb.example.com/api/v1")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if ORBCTL_HOME already exists")
	return cmd
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(store.Home())
	if err != nil {
		return nil, fmt.Errorf("orbctl not initialized, run 'orbctl init' first: %w", err)
	}
	return s, nil
}

// openConsole opens the current session's console. Callers must Close it.
func openConsole() (*console.Console, error) {
	s, err := loadStore()
	if err != nil {
		return nil, err
	}
	sess, err := session.Current(s)
	if err != nil {
		return nil, err
	}
	client := console.NewClient(s.Config, ui.Logger)
	return console.Open(s, sess, client, ui.Logger)
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage console sessions",
		Long:  "Create, list, and end sessions. A session owns its own saved filters; ending it drops them.",
	}
	cmd.AddCommand(sessionStartCmd())
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionCurrentCmd())
	cmd.AddCommand(sessionEndCmd())
	return cmd
}

func sessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start [name]",
		Short:   "Start a new session",
		Example: "  orbctl session start incident-4711\n  orbctl --session <id> list sinks",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			name := "console"
			if len(args) == 1 {
				name = args[0]
			}
			sess, err := session.Create(s, name)
			if err != nil {
				return err
			}
			ui.Success("Session started")
			ui.KeyValue("ID:     ", ui.Bold(sess.ID))
			ui.KeyValue("Storage:", ui.Dim(sess.Storage))
			return nil
		},
	}
}

func sessionListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}

			var sessions []session.Session
			if all {
				sessions, err = session.List(s)
			} else {
				sessions, err = session.GetActive(s)
			}
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				ui.EmptyState("No sessions found.")
				return nil
			}

			var rows [][]string
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.ID,
					string(sess.Status),
					sess.Storage,
					sess.LastRoute,
					sess.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			ui.Table([]string{"ID", "STATUS", "STORAGE", "LAST ROUTE", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show ended sessions too")
	return cmd
}

func sessionCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the session commands run in",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			sess, err := session.Current(s)
			if err != nil {
				return err
			}
			ui.KeyValue("ID:        ", ui.Bold(sess.ID))
			ui.KeyValue("Name:      ", sess.Name)
			ui.KeyValue("Status:    ", ui.State(string(sess.Status)))
			ui.KeyValue("Storage:   ", sess.Storage)
			ui.KeyValue("Last route:", sess.LastRoute)
			ui.KeyValue("File:      ", ui.Dim(session.StoragePath(s, sess)))
			return nil
		},
	}
}

func sessionEndCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session and drop its saved filters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if !yes {
				proceed, err := ui.Confirm(fmt.Sprintf("End session %s and drop its filters?", args[0]))
				if err != nil {
					return err
				}
				if !proceed {
					ui.Info("Cancelled.")
					return nil
				}
			}
			if err := session.End(s, args[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Ended session %s", args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit orbctl configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			cfg := s.Config
			if cfg.API.Token != "" {
				cfg.API.Token = "********"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "get <key>",
		Short:     "Print a configuration value",
		Args:      cobra.ExactArgs(1),
		ValidArgs: store.ConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			v, err := s.GetConfigValue(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set an orbctl configuration value. Valid keys: api.url, api.token, api.page_size, api.timeout_seconds, api.rate_limit, storage.backend, watch.poll_seconds, log.level.",
		Example: `  orbctl config set api.url https://orb.example.com/api/v1
  orbctl config set storage.backend sqlite
  orbctl config set watch.poll_seconds 5`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: store.ConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of ORBCTL_HOME and its sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()

			if _, err := store.Load(home); err != nil {
				return fmt.Errorf("orbctl not initialized, run 'orbctl init' first: %w", err)
			}

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(home)
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(home)
			issues = append(issues, store.CheckSessionIntegrity(home)...)

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				os.Exit(0)
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair issues and remove filter storage left behind by ended sessions")
	return cmd
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  orbctl completion bash > ~/.bashrc.d/orbctl\n  orbctl completion zsh > ~/.zfunc/_orbctl\n  orbctl completion fish > ~/.config/fish/completions/orbctl.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-serve",
		Short: "Run orbctl as an MCP server",
		Long:  "Start orbctl as a Model Context Protocol (MCP) server over stdio. MCP clients can list views, read filtered lists, and edit the saved filters of the current session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole()
			if err != nil {
				return err
			}
			defer c.Close()

			server := orbmcp.NewServer(c, buildVersion())
			return server.Run(context.Background())
		},
	}
}
