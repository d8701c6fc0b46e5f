package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"meshfuzz/internal/harness"
)

type progressModel struct {
	title   string
	events  <-chan harness.Event
	spinner spinner.Model
	prog    progress.Model
	items   []caseItem
	index   map[string]int
	width   int
	done    bool
}

type caseItem struct {
	name   string
	status string
	detail string
	// frac is the share of the current sweep that is done.
	frac float64
}

type eventMsg harness.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders run progress.
func NewProgressModel(title string, cases []string, events <-chan harness.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76 // Default width

	items := make([]caseItem, 0, len(cases))
	index := make(map[string]int, len(cases))
	for i, name := range cases {
		items = append(items, caseItem{name: name, status: "queued"})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(harness.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 8
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		line := item.name
		if item.detail != "" {
			line += "  " + item.detail
		}
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%8s", item.status))
		fmt.Fprintf(&b, "  %s %s\n", statusStyled, truncate(line, nameWidth))
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev harness.Event) tea.Cmd {
	idx, ok := m.index[ev.Case]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	switch ev.Status {
	case harness.StatusQueued:
		item.status = "queued"
	case harness.StatusDone:
		item.status, item.detail, item.frac = "pass", "", 0
	case harness.StatusError:
		item.status, item.detail, item.frac = "fail", "", 0
	case harness.StatusWorking:
		item.status = "running"
		item.detail = stageDetail(ev)
		if ev.Stage == harness.StageSweep && ev.Total > 0 {
			item.frac = float64(ev.Done) / float64(ev.Total)
		}
	}

	total := 0.0
	for _, it := range m.items {
		switch it.status {
		case "pass", "fail":
			total += 1.0
		case "running":
			total += 0.9 * it.frac
		}
	}
	return m.prog.SetPercent(total / float64(len(m.items)))
}

func stageDetail(ev harness.Event) string {
	switch ev.Stage {
	case harness.StageSweep:
		return fmt.Sprintf("%s %s %d/%d", ev.File, ev.Sweep, ev.Done, ev.Total)
	case "":
		return ""
	default:
		return fmt.Sprintf("%s %s", ev.File, ev.Stage)
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "pass":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "fail":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
