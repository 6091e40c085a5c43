package tui

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"prepflow/internal/config"
	"prepflow/internal/session"
)

// ErrNotTerminal is returned when the interactive UI is requested without
// a terminal attached.
var ErrNotTerminal = errors.New("interactive mode requires a terminal")

// Run starts the interactive form and returns the edited stage options
// once the user quits.
func Run(stages config.Stages, sum session.Summary, runFn func(config.Stages) (int, error), saveFn func(config.Stages) error) (config.Stages, error) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return stages, ErrNotTerminal
	}

	m := New(stages, sum, runFn, saveFn)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return stages, err
	}
	if fm, ok := final.(*Model); ok {
		return fm.Stages(), nil
	}
	return stages, nil
}
