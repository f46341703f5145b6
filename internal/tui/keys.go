package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Stop  key.Binding
	Force key.Binding
	Kill  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Stop: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "stop all workers"),
		),
		Force: key.NewBinding(
			key.WithKeys("Q"),
			key.WithHelp("Q", "leave dashboard (workers keep running)"),
		),
		// Only honored while stopping; raw mode swallows SIGINT.
		Kill: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "exit now"),
		),
	}
}

func (k keyMap) help() string {
	return k.Stop.Help().Key + " " + k.Stop.Help().Desc + " • " + k.Force.Help().Key + " " + k.Force.Help().Desc
}
