package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/corewasm/loader/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	pcStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browseState int

const (
	stateSelectFunc browseState = iota
	stateShowBody
)

type interactiveModel struct {
	err        error
	module     *wasm.Module
	filename   string
	state      browseState
	selected   int
	scroll     int
	pageHeight int
}

func newInteractiveModel(filename string) *interactiveModel {
	height := 20
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if _, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && h > 10 {
			height = h - 8 // leave room for header and help line
		}
	}
	return &interactiveModel{filename: filename, state: stateSelectFunc, pageHeight: height}
}

type loadedMsg struct {
	err    error
	module *wasm.Module
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := wasm.ParseModule(data)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{module: mod}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			switch m.state {
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
			case stateShowBody:
				if m.scroll > 0 {
					m.scroll--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectFunc:
				if m.module != nil && m.selected < len(m.module.Functions)-1 {
					m.selected++
				}
			case stateShowBody:
				m.scroll++
			}

		case "enter":
			if m.state == stateSelectFunc && m.module != nil && len(m.module.Functions) > 0 {
				m.state = stateShowBody
				m.scroll = 0
			}

		case "esc":
			if m.state == stateShowBody {
				m.state = stateSelectFunc
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.module = msg.module
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.module == nil {
		return "Decoding module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wasmdump"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString(fmt.Sprintf("%d functions, %d exports, %d elements, %d data segments\n\n",
			len(m.module.Functions), len(m.module.Exports), len(m.module.Elements), len(m.module.Data)))
		for i, fn := range m.module.Functions {
			line := fmt.Sprintf("func[%d] (%d params -> %d results, %d instructions)",
				i, len(fn.Type.Params), len(fn.Type.Results), len(fn.Body))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter view body • q quit"))

	case stateShowBody:
		fn := m.module.Functions[m.selected]
		b.WriteString(sectionStyle.Render(fmt.Sprintf("func[%d] body", m.selected)))
		b.WriteString("\n\n")
		end := m.scroll + m.pageHeight
		if end > len(fn.Body) {
			end = len(fn.Body)
		}
		for pc := m.scroll; pc < end; pc++ {
			in := fn.Body[pc]
			b.WriteString(fmt.Sprintf("%s opcode=0x%02x cont=%s else=%s\n",
				pcStyle.Render(fmt.Sprintf("%4d", pc)),
				in.Opcode,
				pcStyle.Render(fmt.Sprintf("%d", in.ContinuationPC)),
				pcStyle.Render(fmt.Sprintf("%d", in.ElseContinuationPC))))
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
	}

	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newInteractiveModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
