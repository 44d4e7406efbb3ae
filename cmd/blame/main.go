package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/blame/internal/blame"
	blamemcp "github.com/kokistudios/blame/internal/mcp"
	"github.com/kokistudios/blame/internal/store"
	"github.com/kokistudios/blame/internal/ui"
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
	var noColor, verbose bool

	rootCmd := &cobra.Command{
		Use:   "blame",
		Short: "blame — line history from git blame",
		Long:  "Find who last changed a line, then keep going back: skip commits one at a time, follow moved and copied code, and read the commits that touched it.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor, verbose)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log git invocations and skipped output")

	// Command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "history", Title: "History Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	for _, c := range []*cobra.Command{lineCmd(), fileCmd(), showCmd()} {
		c.GroupID = "core"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{walkCmd(), instadiffCmd()} {
		c.GroupID = "history"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{initCmd(), modeCmd(), configCmd(), doctorCmd()} {
		c.GroupID = "config"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(mcpServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Error(explain(err))
		os.Exit(1)
	}
}

// explain turns resolver errors into something a user can act on.
func explain(err error) string {
	var be *blame.Error
	if !errors.As(err, &be) {
		return err.Error()
	}
	switch be.Kind {
	case blame.ToolInvocationFailure:
		if be.Detail != "" {
			return "git failed: " + be.Detail
		}
		return "git failed: " + be.Err.Error()
	case blame.ParseFailure:
		return be.Detail + "\n  Could not read git's output. If you set git.custom_blame_flags, check that they do not change the output format."
	}
	return be.Detail
}

func loadStore() (*store.Store, error) {
	s, err := store.LoadOrDefault(store.Home())
	if err != nil {
		return nil, fmt.Errorf("cannot load configuration (run 'blame doctor --fix' to repair): %w", err)
	}
	return s, nil
}

func newResolver(s *store.Store, relative bool) *blame.Resolver {
	opts := s.ResolverOptions()
	opts.RelativeDates = opts.RelativeDates || relative
	opts.Logger = ui.Logger
	return blame.NewResolver(blame.NewGitExecutor(s.Config.Git.Path), opts)
}

func parseLineNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("line must be a positive number, got %q", s)
	}
	return n, nil
}

// parseRange reads "start,end" or a single "n".
func parseRange(s string) (blame.LineRange, error) {
	startStr, endStr, found := strings.Cut(s, ",")
	start, err := parseLineNumber(strings.TrimSpace(startStr))
	if err != nil {
		return blame.LineRange{}, err
	}
	end := start
	if found {
		if end, err = parseLineNumber(strings.TrimSpace(endStr)); err != nil {
			return blame.LineRange{}, err
		}
	}
	if end < start {
		return blame.LineRange{}, fmt.Errorf("range %s ends before it starts", s)
	}
	return blame.LineRange{Start: start, End: end}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Create BLAME_HOME with a default config",
		Long:    "Create the BLAME_HOME directory (~/.blame by default) with config.yaml and overrides.yaml. Optional: without it every command runs on defaults.",
		Example: "  blame init\n  blame init --force --yes",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			if _, err := os.Stat(home); err == nil && force && !yes {
				proceed, err := ui.Confirm(fmt.Sprintf("Reinitialize %s?", home), "resets config.yaml and clears per-file modes")
				if err != nil {
					return err
				}
				if !proceed {
					ui.Info("Cancelled.")
					return nil
				}
			}
			if err := store.Init(home, force); err != nil {
				return err
			}
			ui.Success("blame initialized")
			ui.Detail("Home:", home)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if BLAME_HOME already exists")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation when reinitializing")
	return cmd
}

func lineCmd() *cobra.Command {
	var skip []string
	var mode string
	var relative, asJSON, subject bool
	cmd := &cobra.Command{
		Use:   "line <file> <line>",
		Short: "Show the commit that last changed a line",
		Long:  "Blame one line. Pass --skip with revisions already seen to look past them; 'blame walk' repeats this automatically.",
		Example: `  blame line main.go 42
  blame line main.go 42 --skip 4a3eb02f --mode cross_file_same_commit
  blame line main.go 42 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			n, err := parseLineNumber(args[1])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			m, source, err := s.EffectiveMode(path, mode)
			if err != nil {
				return err
			}
			r := newResolver(s, relative)

			rec, err := r.ResolveLine(cmd.Context(), path, n, skip, m)
			if err != nil {
				return err
			}
			next, more := blame.Advance(rec.RevisionNormalized, skip)

			var subj string
			if subject && !rec.Uncommitted() {
				if subj, err = r.CommitSubject(cmd.Context(), path, rec.RevisionNormalized); err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(struct {
					blame.Record
					Subject  string         `json:"subject,omitempty"`
					Mode     string         `json:"mode"`
					NextSkip blame.SkipList `json:"next_skip,omitempty"`
					Terminal bool           `json:"terminal"`
				}{rec, subj, m.Key, next, !more})
			}

			ui.RecordDetails(rec, m, source)
			if subj != "" {
				ui.KeyValue("Subject", subj)
			}
			fmt.Fprintln(os.Stderr)
			switch {
			case !more:
				ui.Info(fmt.Sprintf("No earlier commits affected line %d.", n))
			case rec.Uncommitted():
				ui.Info("This line has uncommitted changes.")
			case len(next) == len(skip):
				ui.Warning("git returned a revision that is already skipped.")
			default:
				ui.Detail("earlier:", ui.Bold(fmt.Sprintf("blame line %s %d --skip %s", path, n, strings.Join(next, ","))))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "Revisions to ignore, oldest first (comma-separated or repeated)")
	cmd.Flags().StringVar(&mode, "mode", "", "Commit skipping mode (see 'blame mode list')")
	cmd.Flags().BoolVar(&relative, "relative", false, "Show relative dates")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	cmd.Flags().BoolVar(&subject, "subject", false, "Also show the commit subject")
	return cmd
}

func fileCmd() *cobra.Command {
	var lines, mode string
	var relative, asJSON bool
	cmd := &cobra.Command{
		Use:   "file <file>",
		Short: "Annotate every line of a file",
		Example: `  blame file main.go
  blame file main.go --lines 10,20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			s, err := loadStore()
			if err != nil {
				return err
			}
			m, _, err := s.EffectiveMode(path, mode)
			if err != nil {
				return err
			}
			r := newResolver(s, relative)

			var recs []blame.Record
			if lines != "" {
				lr, err := parseRange(lines)
				if err != nil {
					return err
				}
				recs, err = r.ResolveRange(cmd.Context(), path, lr.Start, lr.End, nil, m)
				if err != nil {
					return err
				}
			} else if recs, err = r.ResolveFile(cmd.Context(), path, m); err != nil {
				return err
			}

			if asJSON {
				if recs == nil {
					recs = []blame.Record{}
				}
				return printJSON(recs)
			}
			if len(recs) == 0 {
				ui.EmptyState("Nothing to blame: the file is empty.")
				return nil
			}
			ui.RenderBlame(os.Stdout, recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&lines, "lines", "", "Only blame lines start,end")
	cmd.Flags().StringVar(&mode, "mode", "", "Commit skipping mode (see 'blame mode list')")
	cmd.Flags().BoolVar(&relative, "relative", false, "Show relative dates")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func walkCmd() *cobra.Command {
	var mode string
	var limit int
	var relative, asJSON bool
	cmd := &cobra.Command{
		Use:   "walk <file> <line>",
		Short: "List every commit that changed a line, newest first",
		Long:  "Blame a line, skip the commit found, and blame again until no earlier commit touched it.",
		Example: `  blame walk main.go 42
  blame walk main.go 42 --mode cross_any_file --limit 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			n, err := parseLineNumber(args[1])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			m, _, err := s.EffectiveMode(path, mode)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = s.Config.Blame.WalkLimit
			}
			r := newResolver(s, relative)

			var spinner *ui.Spinner
			if !asJSON {
				spinner = ui.NewSpinner(fmt.Sprintf("Walking back line %d of %s", n, path))
			}
			res, err := blame.Walk(cmd.Context(), r, path, n, m, limit)
			if spinner != nil {
				spinner.Stop()
			}
			if err != nil && len(res.Steps) == 0 {
				return err
			}

			if asJSON {
				if res.Steps == nil {
					res.Steps = []blame.Step{}
				}
				if jerr := printJSON(res); jerr != nil {
					return jerr
				}
				return err
			}
			ui.CommandBanner("walk", fmt.Sprintf("%s:%d · mode %s", path, n, m.Key))
			ui.RenderWalk(res)
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Commit skipping mode (see 'blame mode list')")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many commits (default: blame.walk_limit)")
	cmd.Flags().BoolVar(&relative, "relative", false, "Show relative dates")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the walk as JSON")
	return cmd
}

func showCmd() *cobra.Command {
	var subject, raw bool
	cmd := &cobra.Command{
		Use:   "show <file> <rev>",
		Short: "Show a commit from the file's repository",
		Example: `  blame show main.go 4a3eb02f
  blame show main.go 4a3eb02f --subject`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			rev := blame.NormalizeRevision(args[1])
			return showCommit(cmd.Context(), newResolver(s, false), args[0], rev, subject, raw)
		},
	}
	cmd.Flags().BoolVar(&subject, "subject", false, "Only print the subject line")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print git show output unformatted")
	return cmd
}

func showCommit(ctx context.Context, r *blame.Resolver, path, rev string, subjectOnly, raw bool) error {
	if subjectOnly {
		subj, err := r.CommitSubject(ctx, path, rev)
		if err != nil {
			return err
		}
		fmt.Println(subj)
		return nil
	}
	out, err := r.ShowCommit(ctx, path, rev)
	if err != nil {
		return err
	}
	if raw {
		fmt.Print(out)
		return nil
	}
	info, err := blame.ParseCommit(out)
	if err != nil {
		ui.Logger.Debug("falling back to raw output", "err", err)
		fmt.Print(out)
		return nil
	}
	ui.RenderMarkdown(os.Stdout, ui.CommitMarkdown(info, blame.PatchOf(out)))
	return nil
}

func instadiffCmd() *cobra.Command {
	var mode string
	var raw bool
	cmd := &cobra.Command{
		Use:     "instadiff <file> <line>",
		Short:   "Show the commit that last changed a line, diff included",
		Example: "  blame instadiff main.go 42",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			n, err := parseLineNumber(args[1])
			if err != nil {
				return err
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			m, _, err := s.EffectiveMode(path, mode)
			if err != nil {
				return err
			}
			r := newResolver(s, false)

			rec, err := r.ResolveLine(cmd.Context(), path, n, nil, m)
			if err != nil {
				return err
			}
			if rec.Uncommitted() {
				ui.Info(fmt.Sprintf("Line %d has uncommitted changes; nothing to show.", n))
				return nil
			}
			return showCommit(cmd.Context(), r, path, rec.RevisionNormalized, false, raw)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Commit skipping mode (see 'blame mode list')")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print git show output unformatted")
	return cmd
}

func modeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Choose how blame follows moved and copied lines",
	}
	cmd.AddCommand(modeListCmd())
	cmd.AddCommand(modeSetCmd())
	cmd.AddCommand(modeClearCmd())
	return cmd
}

func modeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List commit skipping modes and per-file overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			ui.RenderModes(s.Config.Blame.CommitSkippingMode)

			overrides, err := s.TemporaryModes()
			if err != nil {
				return err
			}
			if len(overrides) == 0 {
				return nil
			}
			ui.SectionHeader("Temporary")
			rows := make([][]string, 0, len(overrides))
			for _, o := range overrides {
				rows = append(rows, []string{o.Mode, o.Path})
			}
			ui.Table([]string{"MODE", "FILE"}, rows)
			return nil
		},
	}
}

func modeSetCmd() *cobra.Command {
	var file string
	var temporary, permanent bool
	cmd := &cobra.Command{
		Use:   "set [mode]",
		Short: "Set the commit skipping mode",
		Long:  "Set the mode for every file, or temporarily for one file with --file. Without a mode argument an interactive picker is shown.",
		Example: `  blame mode set cross_any_file
  blame mode set same_file_same_commit --file main.go --temporary
  blame mode set --file main.go`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if temporary && permanent {
				return fmt.Errorf("--temporary and --permanent are mutually exclusive")
			}
			if temporary && file == "" {
				return fmt.Errorf("--temporary needs --file")
			}
			s, err := loadStore()
			if err != nil {
				return err
			}

			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				current := s.Config.Blame.CommitSkippingMode
				if file != "" {
					m, _, err := s.EffectiveMode(file, "")
					if err != nil {
						return err
					}
					current = m.Key
				}
				if key, err = ui.SelectMode(current); err != nil {
					return err
				}
			}
			m, err := blame.LookupMode(key)
			if err != nil {
				return err
			}

			scope := ui.Permanent
			switch {
			case temporary:
				scope = ui.Temporary
			case file != "" && !permanent:
				if scope, err = ui.SelectPermanence(file); err != nil {
					return err
				}
			}

			if scope == ui.Temporary {
				if err := s.SetTemporaryMode(file, m.Key); err != nil {
					return err
				}
				ui.Success(fmt.Sprintf("Mode for %s set to %s", file, m.Key))
				ui.Detail("flags:", m.String())
				return nil
			}
			if err := s.SetPermanentMode(m.Key); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Default mode set to %s", m.Key))
			ui.Detail("flags:", m.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File the mode applies to")
	cmd.Flags().BoolVar(&temporary, "temporary", false, "Only for --file, until cleared")
	cmd.Flags().BoolVar(&permanent, "permanent", false, "Make it the default for every file")
	return cmd
}

func modeClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <file>",
		Short: "Remove a file's temporary mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			cleared, err := s.ClearTemporaryMode(args[0])
			if err != nil {
				return err
			}
			if !cleared {
				ui.EmptyState(fmt.Sprintf("%s has no temporary mode.", args[0]))
				return nil
			}
			ui.Success(fmt.Sprintf("Cleared temporary mode for %s", args[0]))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit blame configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	cmd.AddCommand(configPathCmd())
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
			data, err := yaml.Marshal(s.Config)
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
		Long:  "Set a blame configuration value. Valid keys: " + strings.Join(store.ConfigKeys, ", ") + ".",
		Example: `  blame config set git.path /usr/local/bin/git
  blame config set git.custom_blame_flags "--root"
  blame config set blame.relative_dates true`,
		Args: cobra.ExactArgs(2),
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

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			fmt.Println(s.Path("config.yaml"))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check BLAME_HOME and the git installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()

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
			if len(issues) == 0 {
				ui.Success("Everything looks good")
				return nil
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
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair missing config and drop stale per-file overrides")
	return cmd
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  blame completion bash > ~/.bashrc.d/blame\n  blame completion zsh > ~/.zfunc/_blame\n  blame completion fish > ~/.config/fish/completions/blame.fish",
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
		Use:    "mcp-serve",
		Short:  "Run blame as an MCP server",
		Long:   "Start blame as a Model Context Protocol (MCP) server over stdio, so MCP-compatible tools can look up line history directly.",
		Hidden: true, // Not typically called directly by users
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}

			server, err := blamemcp.NewServer(s, version, ui.Logger)
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
