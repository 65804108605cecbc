package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/studiowebux/halcrud/internal/executor"
	"github.com/studiowebux/halcrud/internal/filter"
	"github.com/studiowebux/halcrud/internal/hal"
	"github.com/studiowebux/halcrud/internal/history"
	"github.com/studiowebux/halcrud/internal/types"
	"gopkg.in/yaml.v3"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// IsTerminal reports whether w is a terminal
func IsTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// outputFormat is the requested format, or text on a terminal and json when piped
func (s *Session) outputFormat() string {
	return resolveFormat(s.opts.OutputFormat, s.opts.Stdout)
}

func resolveFormat(format string, w io.Writer) string {
	if format != "" {
		return format
	}
	if IsTerminal(w) {
		return "text"
	}
	return "json"
}

func (s *Session) printItems(ctx context.Context, items []hal.Entity) error {
	out, err := s.render(ctx, items, func() string { return itemsTable(s.resource, items) })
	if err != nil {
		return err
	}
	fmt.Fprint(s.opts.Stdout, out)
	return nil
}

// render formats data after applying --filter and --query. text is used for
// the text format when no expression reshaped the data.
func (s *Session) render(ctx context.Context, data interface{}, text func() string) (string, error) {
	return formatOutput(ctx, s.opts.Stdout, data, s.outputFormat(), s.opts.Filter, s.opts.Query, text)
}

func formatOutput(ctx context.Context, w io.Writer, data interface{}, format, filterExpr, queryExpr string, text func() string) (string, error) {
	if filterExpr != "" || queryExpr != "" {
		res, err := filter.Apply(ctx, data, filterExpr, queryExpr)
		if err != nil {
			return "", err
		}
		if res.Shell {
			return res.Text + "\n", nil
		}
		data = res.Data
		text = nil
	}

	switch format {
	case "json":
		return jsonOutput(data, IsTerminal(w))
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return string(out), nil
	case "text":
		if text == nil {
			return jsonOutput(data, IsTerminal(w))
		}
		return text() + "\n", nil
	default:
		return "", fmt.Errorf("unknown output format %q (use json, yaml or text)", format)
	}
}

// jsonOutput indents data and highlights it for terminals
func jsonOutput(data interface{}, color bool) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if !color {
		return string(out) + "\n", nil
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, string(out), "json", "terminal256", "monokai"); err != nil {
		return string(out) + "\n", nil
	}
	return buf.String() + "\n", nil
}

// itemsTable renders items with the resource's table columns
func itemsTable(rc types.ResourceConfig, items []hal.Entity) string {
	cols := rc.TableColumns()
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Label
		if headers[i] == "" {
			headers[i] = c.Key
		}
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(cols))
		for i, c := range cols {
			if c.Key == "id" {
				row[i] = item.ID()
			} else {
				row[i] = item.Attr(c.Key)
			}
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	title := rc.Title
	if title == "" {
		title = rc.Name
	}
	summary := mutedStyle.Render(fmt.Sprintf("%d %s", len(items), title))
	return t.String() + "\n" + summary
}

// entityText lists the configured fields, then any other attributes
func (s *Session) entityText(e hal.Entity, etag string) string {
	var sb strings.Builder

	sb.WriteString(labelStyle.Render(s.resource.Label()+" "+e.ID()) + "\n")
	if href := e.SelfHref(); href != "" {
		sb.WriteString(mutedStyle.Render(href) + "\n")
	}
	if etag != "" {
		sb.WriteString(mutedStyle.Render("ETag: "+etag) + "\n")
	}
	sb.WriteString("\n")

	shown := map[string]bool{"_links": true, "_embedded": true}
	for _, f := range s.resource.Fields {
		shown[f.Key] = true
		sb.WriteString(fmt.Sprintf("%s: %s\n", labelStyle.Render(f.DisplayLabel()), e.Attr(f.Key)))
	}

	var extra []string
	for key := range e {
		if !shown[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		sb.WriteString(fmt.Sprintf("%s: %s\n", mutedStyle.Render(key), e.Attr(key)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// historyTable renders history entries newest first
func historyTable(entries []types.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := ""
		if e.Status != 0 {
			status = fmt.Sprintf("%d", e.Status)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.ID),
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Resource,
			e.Label,
			e.Method,
			status,
			outcomeStyle(e.Outcome).Render(e.Outcome),
			executor.FormatDuration(e.DurationMs),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "TIME", "RESOURCE", "OPERATION", "METHOD", "STATUS", "OUTCOME", "DURATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// statsTable renders per-operation aggregates
func statsTable(stats []history.Stats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			label := "-"
			if code != 0 {
				label = fmt.Sprintf("%d", code)
			}
			parts = append(parts, fmt.Sprintf("%s×%d", label, s.StatusCodes[code]))
		}

		rows = append(rows, []string{
			s.Resource,
			s.Label,
			fmt.Sprintf("%d", s.Total),
			okStyle.Render(fmt.Sprintf("%d", s.OK)),
			warnStyle.Render(fmt.Sprintf("%d/%d", s.Gone, s.Conflict)),
			failStyle.Render(fmt.Sprintf("%d", s.Failed)),
			executor.FormatDuration(int64(s.AvgDurationMs)),
			strings.Join(parts, " "),
			s.LastRun.Format("2006-01-02 15:04:05"),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("RESOURCE", "OPERATION", "RUNS", "OK", "GONE/CONFLICT", "FAILED", "AVG", "STATUS", "LAST RUN").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "ok":
		return okStyle
	case "gone", "conflict":
		return warnStyle
	default:
		return failStyle
	}
}

func copyToClipboard(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}
