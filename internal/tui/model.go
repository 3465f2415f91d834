// Package tui is the interactive decision console. Engine state changes are
// forwarded to the bubbletea program as messages and every frame is drawn
// from a fresh view.Project of the engine snapshot.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"sentinel/internal/domain"
	"sentinel/internal/engine"
	"sentinel/internal/view"
)

// SampleTicket seeds the draft so a first decide is one keystroke away.
const SampleTicket = "Hi, I was charged twice for my subscription and need a refund. Please help ASAP."

type Config struct {
	Service      engine.Service
	APIBase      string
	// HistoryLimit sizes the manual refresh; automatic ones always ask for
	// engine.DefaultHistoryLimit.
	HistoryLimit int
	Logger       *log.Logger
	// Now and Location default to time.Now and time.Local.
	Now      func() time.Time
	Location *time.Location

	options []tea.ProgramOption
}

// stateChangedMsg tells the model the engine has moved.
type stateChangedMsg struct{}

type Model struct {
	ctx     context.Context
	cfg     Config
	engine  *engine.Engine
	changes chan struct{}

	keys  keyMap
	help  help.Model
	input textarea.Model
	width int

	view view.Model
}

func New(ctx context.Context, cfg Config) Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	// Buffer of one: a pending notification already covers any later change.
	changes := make(chan struct{}, 1)
	eng := engine.New(cfg.Service, engine.Options{
		HistoryLimit: cfg.HistoryLimit,
		Logger:       cfg.Logger,
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})

	input := textarea.New()
	input.Placeholder = "Paste a support ticket…"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(5)
	input.SetValue(SampleTicket)
	input.Focus()
	eng.SetText(input.Value())

	m := Model{
		ctx:     ctx,
		cfg:     cfg,
		engine:  eng,
		changes: changes,
		keys:    defaultKeyMap(),
		help:    help.New(),
		input:   input,
	}
	m.project()
	return m
}

// Engine exposes the orchestrator driving the console.
func (m Model) Engine() *engine.Engine { return m.engine }

// Projection is what the last frame was drawn from.
func (m Model) Projection() view.Model { return m.view }

func (m Model) Init() tea.Cmd {
	eng, ctx := m.engine, m.ctx
	return tea.Batch(
		textarea.Blink,
		listenForChanges(m.changes),
		func() tea.Msg {
			eng.Start(ctx)
			return nil
		},
	)
}

func listenForChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		m.project()
		return m, listenForChanges(m.changes)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.SetWidth(max(20, msg.Width-4))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			return m, m.submit()
		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, m.keys.Clear):
			m.input.Reset()
			m.engine.SetText("")
			m.project()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != m.engine.Text() {
		m.engine.SetText(m.input.Value())
		m.project()
	}
	return m, cmd
}

// submit returns nil while the draft is not submittable or a decide is
// already running.
func (m Model) submit() tea.Cmd {
	if !m.engine.Snapshot().CanDecide {
		return nil
	}
	eng, ctx := m.engine, m.ctx
	return func() tea.Msg {
		// The outcome lands in the decide slot; the change notification
		// redraws it.
		_, _ = eng.Submit(ctx)
		return nil
	}
}

func (m Model) refresh() tea.Cmd {
	eng, ctx := m.engine, m.ctx
	return func() tea.Msg {
		_, _ = eng.Refresh(ctx)
		return nil
	}
}

func (m *Model) project() {
	m.view = view.Project(m.engine.Snapshot(), m.cfg.Location, m.cfg.Now())
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	tagStyle     = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("237"))

	tierStyles = map[view.Tier]lipgloss.Style{
		view.TierHigh:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		view.TierMedium:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		view.TierLow:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		view.TierUnknown: mutedStyle,
	}
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sentinel"))
	b.WriteString(mutedStyle.Render("  " + m.cfg.APIBase))
	b.WriteString("  ")
	b.WriteString(m.badge())
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if !m.view.CanDecide && !m.view.Deciding {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Enter at least %d characters to decide.", domain.MinTicketLength)))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	b.WriteString(m.decisionView())
	b.WriteString(m.historyView())
	return b.String()
}

func (m Model) badge() string {
	switch {
	case m.view.Summary == nil:
		return mutedStyle.Render(m.view.Badge)
	case m.view.Summary.Passed:
		return passStyle.Render(m.view.Badge)
	default:
		return failStyle.Render(m.view.Badge)
	}
}

func tier(t view.Tier) string {
	return tierStyles[t].Render(t.Label())
}

func (m Model) decisionView() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Decision"))
	b.WriteString("\n")
	switch {
	case m.view.Deciding:
		b.WriteString(mutedStyle.Render("Deciding…"))
		b.WriteString("\n")
	case m.view.Error != "":
		b.WriteString(errorStyle.Render(m.view.Error))
		b.WriteString("\n")
	case m.view.Summary == nil:
		b.WriteString(mutedStyle.Render("Submit a ticket to see the decision."))
		b.WriteString("\n")
	default:
		s := m.view.Summary
		fmt.Fprintf(&b, "%s → %s  urgency %s  confidence %s\n", s.Action, s.Route, tier(s.Urgency), s.Confidence)
		tags := make([]string, 0, len(s.Citations))
		for _, c := range s.Citations {
			tags = append(tags, tagStyle.Render(c))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tags...))
		b.WriteString("\n")
		for _, r := range s.Reasons {
			b.WriteString("  • " + r + "\n")
		}
		b.WriteString(sectionStyle.Render("Draft response"))
		b.WriteString("\n" + s.DraftResponse + "\n")
		if s.Sources != "" {
			b.WriteString(mutedStyle.Render("Sources: "+s.Sources) + "\n")
		}
		b.WriteString(sectionStyle.Render("QA"))
		b.WriteString("\n")
		if s.NoIssues {
			b.WriteString(mutedStyle.Render("No issues detected."))
			b.WriteString("\n")
		}
		for _, is := range s.Issues {
			b.WriteString("  • " + is + "\n")
		}
		if s.SuggestedFix != "" {
			b.WriteString("Suggested fix: " + s.SuggestedFix + "\n")
		}
	}
	return b.String()
}

func (m Model) historyView() string {
	header := "History"
	if m.view.Refreshing {
		header += mutedStyle.Render("  refreshing…")
	}
	if len(m.view.Rows) == 0 {
		return sectionStyle.Render(header) + "\n" + mutedStyle.Render("No runs yet.") + "\n"
	}
	rows := make([][]string, 0, len(m.view.Rows))
	for _, r := range m.view.Rows {
		rows = append(rows, []string{r.Time, r.Route, tier(r.Urgency), r.Eval, r.Ticket})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Time", "Route", "Urgency", "Eval", "Ticket").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if m.width > 0 {
		t = t.Width(m.width)
	}
	return sectionStyle.Render(header) + "\n" + t.Render() + "\n"
}

// Run drives the console until the user quits or ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	m := New(ctx, cfg)
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, cfg.options...)
	p := tea.NewProgram(m, opts...)
	// In-flight decides and refreshes are abandoned on exit; their results
	// have nowhere left to go.
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
