package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmynk/tabsplit/internal/session"
)

// paletteSubmitMsg is emitted when the user confirms a command.
type paletteSubmitMsg struct{ input string }

// paletteCancelMsg is emitted when the user presses esc.
type paletteCancelMsg struct{}

// palette is the command line overlay.
type palette struct {
	input   textinput.Model
	visible bool
	width   int
}

func newPalette() palette {
	ti := textinput.New()
	ti.Placeholder = "type a command…"
	ti.CharLimit = 256
	return palette{input: ti}
}

func (p palette) Visible() bool { return p.visible }

// Open shows the palette with prefill and returns the focus command.
func (p *palette) Open(prefill string) tea.Cmd {
	p.visible = true
	p.input.SetValue(prefill)
	p.input.CursorEnd()
	return p.input.Focus()
}

func (p *palette) SetWidth(w int) { p.width = w }

func (p palette) Update(msg tea.Msg) (palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			p.visible = false
			p.input.Blur()
			return p, func() tea.Msg { return paletteCancelMsg{} }
		case "enter":
			val := strings.TrimSpace(p.input.Value())
			p.visible = false
			p.input.Blur()
			return p, func() tea.Msg { return paletteSubmitMsg{input: val} }
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

// View renders the input and up to five matching commands of step.
func (p palette) View(step session.Step) string {
	if !p.visible {
		return ""
	}
	prefix := strings.ToLower(strings.TrimSpace(p.input.Value()))
	var matching []command
	for _, c := range commandsFor(step) {
		if prefix == "" || strings.HasPrefix(c.name, prefix) || strings.HasPrefix(prefix, c.name+" ") {
			matching = append(matching, c)
			if len(matching) == 5 {
				break
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Command") + "\n")
	sb.WriteString(": " + p.input.View() + "\n")
	if len(matching) > 0 {
		sb.WriteString("\n")
		for _, c := range matching {
			sb.WriteString(mutedStyle.Render("  "+c.usage+"  "+c.help) + "\n")
		}
	}

	w := p.width
	if w < 20 {
		w = 64
	}
	return paletteStyle.Width(w - 2).Render(sb.String())
}
