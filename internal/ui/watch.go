package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is one reading of a device's connection status.
type Snapshot struct {
	Network    string
	Connection string
	Connected  bool
}

// StatusFunc reads the current status.
type StatusFunc func(ctx context.Context) (*Snapshot, error)

type statusMsg struct {
	snap *Snapshot
	err  error
}

type pollMsg struct{}

// WatchModel is a Bubble Tea model that polls a status source until the
// device connects or the user quits.
type WatchModel struct {
	ctx      context.Context
	fetch    StatusFunc
	interval time.Duration
	untilUp  bool

	spinner spinner.Model
	last    *Snapshot
	err     error
	polls   int
	quit    bool
}

// NewWatchModel creates the model. With untilConnected set it exits on the
// first Connected reading.
func NewWatchModel(ctx context.Context, fetch StatusFunc, interval time.Duration, untilConnected bool) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)
	return WatchModel{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		untilUp:  untilConnected,
		spinner:  s,
	}
}

func (m WatchModel) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch(m.ctx)
		return statusMsg{snap: snap, err: err}
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		}

	case statusMsg:
		m.polls++
		m.err = msg.err
		if msg.err == nil {
			m.last = msg.snap
			if m.untilUp && msg.snap.Connected {
				m.quit = true
				return m, tea.Quit
			}
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.poll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	if m.last == nil && m.err == nil {
		fmt.Fprintf(&b, "  %s Reading device status...\n", m.spinner.View())
		return b.String()
	}

	if m.last != nil {
		network := m.last.Network
		if network == "" {
			network = "(none submitted)"
		}
		marker := m.spinner.View()
		if m.last.Connected {
			marker = StepCompleteStyle.Render(StepMarkerComplete)
		}
		fmt.Fprintf(&b, "  %s %s %s\n", marker,
			HeaderParamKeyStyle.UnsetPaddingLeft().Render("Network:"),
			HeaderParamValueStyle.Render(network))
		fmt.Fprintf(&b, "    %s %s\n",
			HeaderParamKeyStyle.UnsetPaddingLeft().Render("Status: "),
			ConnectionStyle(m.last.Connection).Render(m.last.Connection))
	}
	if m.err != nil {
		fmt.Fprintf(&b, "    %s\n", ErrorMessageStyle.Render(m.err.Error()))
	}
	fmt.Fprintf(&b, "\n  %s\n", StepNoteStyle.Render(fmt.Sprintf("%d reads, q to quit", m.polls)))
	return b.String()
}

// Last returns the latest successful reading, or nil
func (m WatchModel) Last() *Snapshot {
	return m.last
}

// RunWatch runs the watch model until it quits or ctx ends and returns the
// last reading.
func RunWatch(ctx context.Context, fetch StatusFunc, interval time.Duration, untilConnected bool) (*Snapshot, error) {
	model := NewWatchModel(ctx, fetch, interval, untilConnected)
	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if wm, ok := final.(WatchModel); ok {
		return wm.Last(), err
	}
	return nil, err
}
