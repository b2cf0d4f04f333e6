package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Quit key.Binding
}

func newKeyMap(quit []string) keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys(quit...),
			key.WithHelp(strings.Join(quit, "/"), "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}
