package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/halcrud/internal/hal"
	"github.com/studiowebux/halcrud/internal/types"
)

// ErrConfirmationRequired is returned by Confirm when no terminal is available and --yes was not given
var ErrConfirmationRequired = errors.New("confirmation required: rerun with --yes")

var (
	titleStyle        = lipgloss.NewStyle().MarginLeft(2).Bold(true)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	helpStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1).MarginLeft(2)
)

// Prompter asks for confirmations with huh and prints recovery alerts
type Prompter struct {
	out         io.Writer
	yes         bool
	interactive bool
}

// NewPrompter creates a prompter. With yes set every confirmation is granted
// without asking.
func NewPrompter(out io.Writer, yes, interactive bool) *Prompter {
	return &Prompter{out: out, yes: yes, interactive: interactive}
}

// Confirm asks a yes/no question
func (p *Prompter) Confirm(ctx context.Context, message string) (bool, error) {
	if p.yes {
		return true, nil
	}
	if !p.interactive {
		return false, ErrConfirmationRequired
	}

	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(message + "?").
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Alert prints message; alerts never block
func (p *Prompter) Alert(_ context.Context, message string) {
	fmt.Fprintln(p.out, alertStyle.Render(message))
}

// runFieldForm shows one input per configured field, prefilled from current,
// and returns the values entered
func runFieldForm(ctx context.Context, title string, rc types.ResourceConfig, current map[string]string) (map[string]string, error) {
	required := make(map[string]bool)
	for _, k := range rc.Required() {
		required[k] = true
	}

	values := make([]string, len(rc.Fields))
	fields := make([]huh.Field, 0, len(rc.Fields)+1)
	fields = append(fields, huh.NewNote().Title(title))

	for i, f := range rc.Fields {
		values[i] = current[f.Key]

		label := f.DisplayLabel()
		input := huh.NewInput().
			Title(label).
			Placeholder(f.Placeholder).
			Value(&values[i])
		if required[f.Key] {
			input = input.Title(label + " *").Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("%s is required", label)
				}
				return nil
			})
		}
		fields = append(fields, input)
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rc.Fields))
	for i, f := range rc.Fields {
		out[f.Key] = values[i]
	}
	return out, nil
}

type item struct {
	id    string
	name  string
	index int
}

func (i item) FilterValue() string {
	return i.id + " " + i.name
}

func (i item) Title() string {
	if i.name == "" {
		return i.id
	}
	return fmt.Sprintf("%s  %s", i.id, i.name)
}

func (i item) Description() string { return "" }

type selectorModel struct {
	list     list.Model
	choice   int
	quitting bool
}

func (m selectorModel) Init() tea.Cmd {
	return nil
}

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		// Keys belong to the filter input while it is open
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			m.choice = -1
			return m, tea.Quit

		case "enter":
			if i, ok := m.list.SelectedItem().(item); ok {
				m.choice = i.index
			}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectorModel) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("↑/↓: navigate • /: filter • enter: select • q/esc: cancel")
	return fmt.Sprintf("%s\n\n%s", m.list.View(), help)
}

// selectEntity shows the loaded items and returns the one picked
func selectEntity(rc types.ResourceConfig, entities []hal.Entity) (hal.Entity, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("no %s to choose from", rc.Label())
	}

	items := make([]list.Item, 0, len(entities))
	for i, e := range entities {
		items = append(items, item{id: e.ID(), name: displayName(rc, e), index: i})
	}

	const defaultWidth = 80
	const listHeight = 14

	l := list.New(items, itemDelegate{}, defaultWidth, listHeight)
	l.Title = fmt.Sprintf("Select a %s", rc.Label())
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	p := tea.NewProgram(selectorModel{list: l, choice: -1})
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("error running selector: %w", err)
	}

	result := finalModel.(selectorModel)
	if result.choice < 0 {
		return nil, fmt.Errorf("selection cancelled")
	}
	return entities[result.choice], nil
}

// itemDelegate is a custom list item delegate
type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}

	fn := itemStyle.Render
	if index == m.Index() {
		fn = func(s ...string) string {
			return selectedItemStyle.Render("> " + strings.Join(s, " "))
		}
	}

	fmt.Fprint(w, fn(i.Title()))
}
