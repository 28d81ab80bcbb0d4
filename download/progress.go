package download

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

type progressMsg Progress

type doneMsg struct{ err error }

type progressModel struct {
	title    string
	progress progress.Model
	last     Progress
	err      error
	cancel   context.CancelFunc
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			return m, nil
		}
	case progressMsg:
		m.last = Progress(msg)
		return m, m.progress.SetPercent(percent(m.last))
	case doneMsg:
		m.err = msg.err
		return m, tea.Quit
	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		m.progress = newModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	status := fmt.Sprintf("%.1f MiB", float64(m.last.Received)/(1<<20))
	if m.last.Segments > 0 {
		status = fmt.Sprintf("segment %d/%d, %s", m.last.Segment, m.last.Segments, status)
	}
	return fmt.Sprintf("%s episode %d\n%s\n%s\n\n%s\n",
		m.title, m.last.Episode, m.progress.View(), status, helpStyle.Render("Press ctrl+c to cancel"))
}

func percent(p Progress) float64 {
	switch {
	case p.Segments > 0:
		return float64(p.Segment-1) / float64(p.Segments)
	case p.Total > 0:
		return float64(p.Received) / float64(p.Total)
	default:
		return 0
	}
}

// WithProgress runs job while drawing a progress bar on out. job receives
// a context cancelled by ctrl+c and the report function to pass as
// Options.Progress.
func WithProgress(ctx context.Context, title string, out io.Writer, job func(ctx context.Context, report func(Progress)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := &progressModel{
		title:    title,
		progress: progress.New(progress.WithDefaultGradient()),
		cancel:   cancel,
	}
	p := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx))

	go func() {
		err := job(ctx, func(pr Progress) { p.Send(progressMsg(pr)) })
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && m.err == nil {
		return err
	}
	return m.err
}
