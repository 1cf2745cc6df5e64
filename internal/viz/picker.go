package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Choice is one selectable preset.
type Choice struct {
	Field, Name, Description string
}

// Picker is a menu over presets.
type Picker struct {
	choices []Choice
	cursor  int
	chosen  *Choice
}

func NewPicker(choices []Choice) Picker {
	return Picker{choices: choices}
}

func (m Picker) Init() tea.Cmd { return nil }

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.choices) > 0 {
			c := m.choices[m.cursor]
			m.chosen = &c
		}
		return m, tea.Quit
	}
	return m, nil
}

// Chosen returns the selection, if any.
func (m Picker) Chosen() (Choice, bool) {
	if m.chosen == nil {
		return Choice{}, false
	}
	return *m.chosen, true
}

func (m Picker) View() string {
	var b strings.Builder
	b.WriteString("\n  " + title().Render("FLOWLINE") + "\n  " +
		lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Render("field-line presets") + "\n\n")
	for i, c := range m.choices {
		name := fmt.Sprintf("%-24s", c.Field+"/"+c.Name)
		if i == m.cursor {
			b.WriteString("  " + lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).Render("▸ "+name) +
				lipgloss.NewStyle().Foreground(CurrentTheme.Accent).Render(c.Description) + "\n")
		} else {
			b.WriteString("    " + lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Render(name+c.Description) + "\n")
		}
	}
	b.WriteString("\n  " + KeyHint("j/k", "navigate") + KeyHint("enter", "select") + KeyHint("q", "quit") + "\n")
	return b.String()
}

// Pick shows the menu and returns the chosen preset.
func Pick(choices []Choice, opts ...tea.ProgramOption) (Choice, bool, error) {
	final, err := tea.NewProgram(NewPicker(choices), opts...).Run()
	if err != nil {
		return Choice{}, false, err
	}
	c, ok := final.(Picker).Chosen()
	return c, ok, nil
}
