package tui

import "github.com/charmbracelet/bubbles/key"

type keymap struct {
	NextField key.Binding
	PrevField key.Binding
	NextTab   key.Binding
	PrevTab   key.Binding
	Toggle    key.Binding
	CycleNext key.Binding
	CyclePrev key.Binding
	Generate  key.Binding
	Run       key.Binding
	Save      key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func newKeymap() keymap {
	return keymap{
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("]", "ctrl+right"),
			key.WithHelp("]", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("[", "ctrl+left"),
			key.WithHelp("[", "prev tab"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "toggle"),
		),
		CycleNext: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "next option"),
		),
		CyclePrev: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "prev option"),
		),
		Generate: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "preview script"),
		),
		Run: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "run"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save settings"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextField, k.NextTab, k.Toggle, k.Generate, k.Run, k.Quit}
}

func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextField, k.PrevField, k.NextTab, k.PrevTab},
		{k.Toggle, k.CycleNext, k.CyclePrev},
		{k.Generate, k.Run, k.Save, k.Quit},
	}
}
