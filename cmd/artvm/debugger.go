package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chazu/artvm/assembler"
	"github.com/chazu/artvm/manifest"
	"github.com/chazu/artvm/pkg/bytecode"
	"github.com/chazu/artvm/vm"
)

// continueLimit bounds one "continue" so a program that loops forever
// without a breakpoint hands control back to the UI.
const continueLimit = 1_000_000

type keyMap struct {
	Step     key.Binding
	Continue key.Binding
	Break    key.Binding
	Up       key.Binding
	Down     key.Binding
	Reset    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Step, k.Continue, k.Break, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Step, k.Continue, k.Reset},
		{k.Up, k.Down, k.Break},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Step:     key.NewBinding(key.WithKeys("s", " "), key.WithHelp("s/space", "step")),
	Continue: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "continue")),
	Break:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "toggle breakpoint")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "cursor up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "cursor down")),
	Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// line is one disassembled instruction of the program under debug.
type line struct {
	offset int
	text   string
	labels []string
}

type debugModel struct {
	filename string
	prog     *assembler.Program
	machine  *vm.Machine
	output   *bytes.Buffer
	lines    []line
	cursor   int
	status   string
	help     help.Model
}

func newDebugModel(filename string, prog *assembler.Program, opts ...vm.Option) *debugModel {
	out := new(bytes.Buffer)
	opts = append(opts, vm.WithOutput(out))
	m := &debugModel{
		filename: filename,
		prog:     prog,
		machine:  vm.New(prog.Code, opts...),
		output:   out,
		help:     help.New(),
	}

	offset := 0
	ins, err := bytecode.Disassemble(prog.Code)
	for _, in := range ins {
		m.lines = append(m.lines, line{
			offset: offset,
			text:   bytecode.FormatInstruction(in),
			labels: prog.LabelsAt(offset),
		})
		offset += in.Size
	}
	if err != nil {
		m.lines = append(m.lines, line{offset: offset, text: "; " + err.Error()})
	}
	return m
}

func (m *debugModel) Init() tea.Cmd {
	return nil
}

func (m *debugModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, keys.Quit):
		return m, tea.Quit

	case key.Matches(km, keys.Step):
		m.report(m.machine.Step())
		m.follow()

	case key.Matches(km, keys.Continue):
		m.report(m.machine.RunUntilBreak(continueLimit))
		m.follow()

	case key.Matches(km, keys.Break):
		if m.cursor < len(m.lines) {
			off := m.lines[m.cursor].offset
			if m.machine.ToggleBreakpoint(off) {
				m.status = fmt.Sprintf("breakpoint set at 0x%04X", off)
			} else {
				m.status = fmt.Sprintf("breakpoint cleared at 0x%04X", off)
			}
		}

	case key.Matches(km, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(km, keys.Down):
		if m.cursor < len(m.lines)-1 {
			m.cursor++
		}

	case key.Matches(km, keys.Reset):
		m.machine.Reset()
		m.output.Reset()
		m.status = "reset"
		m.follow()

	case key.Matches(km, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *debugModel) report(res vm.StepResult) {
	switch res.State {
	case vm.Faulted, vm.Halted:
		m.status = m.machine.Exit().String()
	default:
		if m.machine.HasBreakpoint(m.machine.IP()) {
			m.status = fmt.Sprintf("stopped at breakpoint 0x%04X", m.machine.IP())
		} else {
			m.status = fmt.Sprintf("stepped %s at 0x%04X", res.Op, res.IP)
		}
	}
}

// follow moves the cursor to the instruction pointer.
func (m *debugModel) follow() {
	ip := m.machine.IP()
	for i, l := range m.lines {
		if l.offset == ip {
			m.cursor = i
			return
		}
	}
}

func (m *debugModel) View() string {
	var code strings.Builder
	ip := m.machine.IP()
	for i, l := range m.lines {
		for _, name := range l.labels {
			code.WriteString("    " + labelStyle.Render("."+name) + "\n")
		}
		marker := "  "
		switch {
		case l.offset == ip && m.machine.State() == vm.Running:
			marker = "▶ "
		case m.machine.HasBreakpoint(l.offset):
			marker = breakStyle.Render("● ")
		}
		text := fmt.Sprintf("%04X  %s", l.offset, l.text)
		if i == m.cursor {
			text = selectedStyle.Render(text)
		}
		code.WriteString(marker + text + "\n")
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().PaddingRight(4).Render(code.String()),
		m.stateView(),
	)

	var b strings.Builder
	b.WriteString(titleStyle.Render("artvm debug "+m.filename) + "\n\n")
	b.WriteString(panes + "\n")
	if m.output.Len() > 0 {
		b.WriteString(offsetStyle.Render("output") + "\n" + m.output.String() + "\n")
	}
	if m.status != "" {
		style := resultStyle
		if m.machine.State() == vm.Faulted {
			style = errorStyle
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(m.help.View(keys)))
	return b.String()
}

func (m *debugModel) stateView() string {
	var b strings.Builder
	b.WriteString(offsetStyle.Render("registers") + "\n")
	for r := 0; r < bytecode.NumRegisters; r += 2 {
		fmt.Fprintf(&b, "r%-2d %-12d r%-2d %d\n", r, m.machine.Register(r), r+1, m.machine.Register(r+1))
	}

	f := m.machine.Flags()
	fmt.Fprintf(&b, "\n%s\neq=%t gt=%t lt=%t\n", offsetStyle.Render("flags"), f.Eq, f.Gt, f.Lt)

	stack := m.machine.Stack()
	fmt.Fprintf(&b, "\n%s (%d)\n", offsetStyle.Render("stack"), len(stack))
	for i := len(stack) - 1; i >= 0 && i >= len(stack)-8; i-- {
		fmt.Fprintf(&b, "  %d\n", stack[i])
	}

	fmt.Fprintf(&b, "\n%s %s  steps %d\n", offsetStyle.Render("state"), m.machine.State(), m.machine.Steps())
	return b.String()
}

// handleDebugCommand processes `artvm debug <file>`.
func handleDebugCommand(args []string, mf *manifest.Manifest) {
	if len(args) != 1 {
		fail(exitFailure, "usage: artvm debug <file>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		fail(exitFailure, "%v", err)
	}

	model := newDebugModel(args[0], prog,
		vm.WithMemorySize(mf.Machine.MemorySize),
		vm.WithStackDepth(mf.Machine.StackDepth),
	)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fail(exitFailure, "%v", err)
	}
}
