package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studiowebux/halcrud/internal/cli"
	"github.com/studiowebux/halcrud/internal/config"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "halcrud",
	Short: "halcrud - CRUD client for HAL+JSON APIs",
	Long: `halcrud lists, searches, creates, edits and deletes the items of HAL+JSON
collections described in a resource configuration file.

Writes are conditional: edits and deletes send the item's current ETag in
If-Match, so a change made elsewhere is reported instead of overwritten.

The configuration is read from ./halcrud.yaml when present, otherwise from
~/.halcrud/resources.yaml. Use --config to point at another file.

Examples:
  halcrud init                          # Write a starter halcrud.yaml
  halcrud serve &                       # Start the local mock HAL server
  halcrud list                          # List the collection
  halcrud search gear                   # Server-side search
  halcrud get sprocket                  # Show one item (id or name)
  halcrud create --set name=Cog         # Create an item
  halcrud edit 1 --set color=blue       # Conditional update
  halcrud delete 1 --yes                # Conditional delete
  halcrud list -q '[].name'             # JMESPath query on the output
  halcrud history                       # Recorded operations`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.List(ctx)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the collection on the server",
	Long: `Search loads the resource's search URL with q set to the query.
An empty query lists the whole collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.Search(ctx, query)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id-or-name]",
	Short: "Show the current representation of an item",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.Get(ctx, firstArg(args), flagCopy)
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an item",
	Long: `Create fills the form from --set key=value pairs. Without any --set and on a
terminal, a form is shown instead. Blank optional fields are sent as null.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.Create(ctx, flagSets)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [id-or-name]",
	Short: "Update an item if nobody changed it meanwhile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.Edit(ctx, firstArg(args), flagSets)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete [id-or-name]",
	Aliases: []string{"rm"},
	Short:   "Delete an item if nobody changed it meanwhile",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *cli.Session) error {
			return s.Delete(ctx, firstArg(args))
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local mock HAL server",
	Long: `Serve runs an in-memory HAL+JSON server with ETag support. Collections come
from --seed (YAML or JSON) or from the example configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Serve(cmd.Context(), cli.ServeOptions{
			SeedPath:  flagSeed,
			Host:      flagHost,
			Port:      flagPort,
			NoPatch:   flagNoPatch,
			Quiet:     flagQuiet,
			LogLevel:  flagLogLevel,
			LogFormat: flagLogFormat,
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.History(cmd.Context(), cli.HistoryOptions{
			Resource:     flagResource,
			Outcome:      flagOutcome,
			Limit:        flagLimit,
			Clear:        flagClear,
			Stats:        flagStats,
			OutputFormat: flagOutput,
			Filter:       flagFilter,
			Query:        flagQuery,
		})
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Init(firstArg(args), flagForce, os.Stdout)
	},
}

// Persistent flags
var (
	flagConfig    string
	flagResource  string
	flagOutput    string
	flagFilter    string
	flagQuery     string
	flagLogLevel  string
	flagLogFormat string
	flagNoHistory bool
)

// Command flags
var (
	flagSets    []string
	flagYes     bool
	flagCopy    bool
	flagSeed    string
	flagHost    string
	flagPort    int
	flagNoPatch bool
	flagQuiet   bool
	flagOutcome string
	flagLimit   int
	flagClear   bool
	flagStats   bool
	flagForce   bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Resource configuration file")
	pf.StringVarP(&flagResource, "resource", "r", "", "Resource to work on (required when several are configured)")
	pf.StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")
	pf.StringVar(&flagFilter, "filter", "", "JMESPath filter applied to the output")
	pf.StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(shell command) applied to the output")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug/info/warn/error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text/json)")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record operations")

	for _, c := range []*cobra.Command{createCmd, editCmd} {
		c.Flags().StringArrayVarP(&flagSets, "set", "s", []string{}, "Set a field (key=value), can be repeated")
	}
	deleteCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Delete without asking")
	getCmd.Flags().BoolVar(&flagCopy, "copy", false, "Copy the output to the clipboard")

	serveCmd.Flags().StringVar(&flagSeed, "seed", "", "Seed file with the collections to serve")
	serveCmd.Flags().StringVar(&flagHost, "host", "", "Host to listen on (default localhost)")
	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().BoolVar(&flagNoPatch, "no-patch", false, "Reject PATCH with 405 so clients fall back to PUT")
	serveCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "Do not print requests")

	historyCmd.Flags().StringVar(&flagOutcome, "outcome", "", "Only show this outcome (ok/gone/conflict/failed)")
	historyCmd.Flags().IntVarP(&flagLimit, "limit", "n", 0, "Maximum number of entries")
	historyCmd.Flags().BoolVar(&flagClear, "clear", false, "Delete the recorded operations")
	historyCmd.Flags().BoolVar(&flagStats, "stats", false, "Aggregate runs, outcomes and durations per operation")

	initCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "Overwrite an existing file")

	rootCmd.AddCommand(listCmd, searchCmd, getCmd, createCmd, editCmd, deleteCmd)
	rootCmd.AddCommand(serveCmd, historyCmd, initCmd)
}

// withSession opens the configured resource, runs fn and closes it
func withSession(cmd *cobra.Command, fn func(context.Context, *cli.Session) error) error {
	ctx := cmd.Context()
	s, err := cli.Open(ctx, cli.Options{
		ConfigPath:   flagConfig,
		Resource:     flagResource,
		OutputFormat: flagOutput,
		Filter:       flagFilter,
		Query:        flagQuery,
		LogLevel:     flagLogLevel,
		LogFormat:    flagLogFormat,
		Yes:          flagYes,
		NoHistory:    flagNoHistory,
		Interactive:  cli.IsTerminal(os.Stdin) && cli.IsTerminal(os.Stdout),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
