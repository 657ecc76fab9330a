package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Interactively browse a shared object's exported symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := listDynamicSymbols(args[0])
			if err != nil {
				return err
			}
			items := make([]list.Item, 0, len(names))
			for _, n := range names {
				if n == "" {
					continue
				}
				items = append(items, symbolItem(n))
			}
			m := newInspectModel(args[0], items)
			p := tea.NewProgram(m)
			_, err = p.Run()
			return err
		},
	}
	return cmd
}

type symbolItem string

func (s symbolItem) Title() string       { return string(s) }
func (s symbolItem) Description() string { return "" }
func (s symbolItem) FilterValue() string { return string(s) }

var inspectTitleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

type inspectModel struct {
	list list.Model
}

func newInspectModel(path string, items []list.Item) inspectModel {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("symbols: %s", path)
	l.Styles.Title = inspectTitleStyle
	return inspectModel{list: l}
}

func (m inspectModel) Init() tea.Cmd { return nil }

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m inspectModel) View() string { return m.list.View() }
