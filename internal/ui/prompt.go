package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kokistudios/blame/internal/blame"
)

// ErrCancelled is returned when the user backs out of a prompt.
var ErrCancelled = errors.New("cancelled")

type choice struct {
	key   string // quick-select key, may be empty
	label string
	desc  string
	value string
}

// choiceModel is a bubbletea model for picking one of a vertical list.
type choiceModel struct {
	title     string
	choices   []choice
	cursor    int
	decided   bool
	cancelled bool
}

func (m choiceModel) Init() tea.Cmd { return nil }

func (m choiceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.decided = true
		return m, tea.Quit
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	default:
		for i, c := range m.choices {
			if c.key != "" && c.key == s {
				m.cursor = i
				m.decided = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m choiceModel) View() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(bannerStyle.Render("  " + m.title + "  "))
	b.WriteString("\n\n")

	for i, c := range m.choices {
		cursor := "  "
		label := c.label
		if i == m.cursor {
			cursor = promptStyle.Render("▸ ")
			label = boldStyle.Render(label)
		}
		key := "   "
		if c.key != "" {
			key = dimStyle.Render(fmt.Sprintf("[%s]", c.key))
		}
		b.WriteString(fmt.Sprintf("%s%s %s  %s\n", cursor, key, label, dimStyle.Render(c.desc)))
	}

	b.WriteString(fmt.Sprintf("\n%s", dimStyle.Render("  ↑/↓ navigate • enter confirm • esc cancel")))
	return b.String()
}

func (m choiceModel) selected() (string, error) {
	if m.cancelled || !m.decided {
		return "", ErrCancelled
	}
	return m.choices[m.cursor].value, nil
}

func runChoice(m choiceModel) (string, error) {
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr) // newline after prompt
	return result.(choiceModel).selected()
}

func newModeModel(current string) choiceModel {
	modes := blame.Modes()
	m := choiceModel{title: "Commit skipping mode", choices: make([]choice, 0, len(modes))}
	for i, mode := range modes {
		flags := strings.Join(mode.ExtraFlags, " ")
		if flags == "" {
			flags = "no extra flags"
		}
		m.choices = append(m.choices, choice{
			key:   fmt.Sprint(i + 1),
			label: mode.Explanation,
			desc:  flags,
			value: mode.Key,
		})
		if mode.Key == current {
			m.cursor = i
		}
	}
	return m
}

// SelectMode lets the user pick a commit-skipping mode, starting at current.
func SelectMode(current string) (string, error) {
	return runChoice(newModeModel(current))
}

// Permanence values returned by SelectPermanence.
const (
	Temporary = "temporary"
	Permanent = "permanent"
)

func newPermanenceModel(path string) choiceModel {
	return choiceModel{
		title: "Apply mode",
		choices: []choice{
			{key: "t", label: "Temporarily", desc: "only for " + path, value: Temporary},
			{key: "p", label: "Permanently", desc: "default for every file", value: Permanent},
		},
	}
}

// SelectPermanence asks whether a mode change applies to path only or to
// every file.
func SelectPermanence(path string) (string, error) {
	return runChoice(newPermanenceModel(path))
}

func newConfirmModel(prompt, detail string) choiceModel {
	return choiceModel{
		title: prompt,
		choices: []choice{
			{key: "y", label: "Yes", desc: detail, value: "yes"},
			{key: "n", label: "No", desc: "leave things as they are", value: "no"},
		},
		cursor: 1,
	}
}

// Confirm asks a yes/no question that defaults to no. Backing out counts as no.
func Confirm(prompt, detail string) (bool, error) {
	v, err := runChoice(newConfirmModel(prompt, detail))
	if errors.Is(err, ErrCancelled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "yes", nil
}
