package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/emberlaunch/ember/internal/adapters/auth"
)

type loginPollMsg struct {
	result auth.LoginResult
	err    error
}

type loginSpinnerModel struct {
	spinner  spinner.Model
	label    string
	interval time.Duration
	poll     func() (auth.LoginResult, error)
	result   auth.LoginResult
	err      error
	done     bool
}

func newLoginSpinnerModel(label string, interval time.Duration, poll func() (auth.LoginResult, error)) loginSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return loginSpinnerModel{
		spinner:  s,
		label:    label,
		interval: interval,
		poll:     poll,
	}
}

func (m loginSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.pollAfter())
}

func (m loginSpinnerModel) pollAfter() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		result, err := m.poll()
		return loginPollMsg{result: result, err: err}
	})
}

func (m loginSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case loginPollMsg:
		if msg.err != nil {
			m.done = true
			m.err = msg.err
			return m, tea.Quit
		}
		m.result = msg.result
		if msg.result.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.pollAfter()
	default:
		return m, nil
	}
}

func (m loginSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runLoginSpinner polls a login session at the given cadence until it
// reaches a terminal state, showing a spinner meanwhile.
func runLoginSpinner(
	ctx context.Context,
	output io.Writer,
	label string,
	interval time.Duration,
	poll func() (auth.LoginResult, error),
) (auth.LoginResult, error) {
	p := tea.NewProgram(
		newLoginSpinnerModel(label, interval, poll),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return auth.LoginResult{}, err
	}

	result, ok := finalModel.(loginSpinnerModel)
	if !ok {
		return auth.LoginResult{}, fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	if result.err != nil {
		return auth.LoginResult{}, result.err
	}

	return result.result, nil
}
