package ui

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type doneMsg struct{}

// waitModel shows a spinner until the work finishes or the user interrupts
type waitModel struct {
	spinner     spinner.Model
	label       string
	done        bool
	interrupted bool
}

func newWaitModel(label string) waitModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(SpinnerStyle))
	return waitModel{spinner: s, label: label}
}

// Init implements tea.Model
func (m waitModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.interrupted = true
			m.done = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m waitModel) View() string {
	if m.done {
		return ""
	}
	return "  " + m.spinner.View() + " " + LabelStyle.Render(m.label) + "\n"
}

// Wait runs fn and, when out is a terminal, shows a spinner with label
// until it returns. Pressing Ctrl+C or Esc cancels the context passed to fn.
func Wait(ctx context.Context, out *os.File, label string, fn func(context.Context) error) error {
	if !IsTerminal(out) {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWaitModel(label), tea.WithOutput(out))
	result := make(chan error, 1)
	go func() {
		result <- fn(ctx)
		p.Send(doneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return err
	}
	// An interrupted spinner quits before fn returns
	cancel()
	return <-result
}
