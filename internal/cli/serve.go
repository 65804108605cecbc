package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/studiowebux/halcrud/internal/config"
	"github.com/studiowebux/halcrud/internal/history"
	"github.com/studiowebux/halcrud/internal/logging"
	"github.com/studiowebux/halcrud/internal/mock"
	"golang.org/x/sync/errgroup"
)

// ServeOptions configures the mock HAL server
type ServeOptions struct {
	SeedPath  string
	Host      string
	Port      int
	NoPatch   bool
	Quiet     bool
	LogLevel  string
	LogFormat string
	Stdout    io.Writer
	Stderr    io.Writer
}

// Serve runs the mock HAL server until ctx is canceled. Without a seed file
// the collections come from the example configuration.
func Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(opts.LogLevel),
		Format: logging.ParseFormat(opts.LogFormat),
		Output: opts.Stderr,
	})

	cfg := &mock.Config{}
	if opts.SeedPath != "" {
		loaded, err := mock.LoadConfig(opts.SeedPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		for _, rc := range config.Example().Resources {
			cfg.Collections = append(cfg.Collections, mock.Collection{
				Name:        rc.Name,
				EmbeddedKey: rc.EmbeddedKey,
			})
		}
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.NoPatch {
		cfg.NoPatch = true
	}
	cfg.Logging = !opts.Quiet

	server := mock.NewServer(cfg, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(opts.Stderr, "Serving %d collection(s) on %s\n", len(cfg.Collections), server.GetAddress())
		if err := server.ListenAndServe(); err != nil {
			return fmt.Errorf("mock server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})

	if !opts.Quiet {
		g.Go(func() error {
			var last uint64
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-server.NotifyChannel():
					for _, l := range server.LogsSince(last) {
						last = l.Seq
						fmt.Fprintf(opts.Stdout, "%s %-6s %s %s %s\n",
							l.Timestamp.Format("15:04:05"),
							l.Method,
							l.Path,
							outcomeStyle(statusOutcome(l.Status)).Render(strconv.Itoa(l.Status)),
							mutedStyle.Render(l.Duration.Round(time.Microsecond).String()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

func statusOutcome(status int) string {
	switch {
	case status < 400:
		return "ok"
	case status == http.StatusNotFound:
		return "gone"
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		return "conflict"
	default:
		return "failed"
	}
}

// HistoryOptions configures the history listing
type HistoryOptions struct {
	Resource     string
	Outcome      string
	Limit        int
	Clear        bool
	Stats        bool // aggregate per operation instead of listing
	OutputFormat string
	Filter       string
	Query        string
	Stdout       io.Writer
}

// History lists (or clears) the recorded operations
func History(ctx context.Context, opts HistoryOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	mgr, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if opts.Clear {
		if err := mgr.Clear(ctx, opts.Resource); err != nil {
			return err
		}
		fmt.Fprintln(opts.Stdout, "History cleared")
		return nil
	}

	format := resolveFormat(opts.OutputFormat, opts.Stdout)

	if opts.Stats {
		stats, err := mgr.Stats(ctx, opts.Resource)
		if err != nil {
			return err
		}
		out, err := formatOutput(ctx, opts.Stdout, stats, format, opts.Filter, opts.Query,
			func() string { return statsTable(stats) })
		if err != nil {
			return err
		}
		fmt.Fprint(opts.Stdout, out)
		return nil
	}

	entries, err := mgr.List(ctx, history.Filter{Resource: opts.Resource, Outcome: opts.Outcome, Limit: opts.Limit})
	if err != nil {
		return err
	}

	out, err := formatOutput(ctx, opts.Stdout, entries, format, opts.Filter, opts.Query,
		func() string { return historyTable(entries) })
	if err != nil {
		return err
	}
	fmt.Fprint(opts.Stdout, out)
	return nil
}

// Init writes the example configuration to path
func Init(path string, force bool, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	if path == "" {
		path = config.LocalConfigFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveFile(config.Example(), path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s\nTry it against the mock server:\n  halcrud serve &\n  halcrud list\n", path)
	return nil
}
