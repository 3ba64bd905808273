package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWidth  = 72
	defaultHeight = 20
	inputHeight   = 3
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	botStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// outgoingMsg carries a bot message into the UI.
type outgoingMsg Outgoing

// outboxClosedMsg means the service stopped.
type outboxClosedMsg struct{}

// submitErrMsg reports a failed Submit.
type submitErrMsg struct{ err error }

type line struct {
	from string
	text string
	err  bool
}

// Model is the bubbletea chat view. Lines typed by the user are submitted to
// the Service; messages from the Service are appended to the transcript.
type Model struct {
	svc        *Service
	input      textinput.Model
	viewport   viewport.Model
	transcript []line
	width      int
	height     int
	quitting   bool
}

// NewModel creates a Model reading from and writing to svc.
func NewModel(svc *Service) Model {
	ti := textinput.New()
	ti.Placeholder = "reply here"
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Focus()

	vp := viewport.New(defaultWidth, defaultHeight-inputHeight)
	return Model{
		svc:      svc,
		input:    ti,
		viewport: vp,
		width:    defaultWidth,
		height:   defaultHeight,
	}
}

// Init starts listening to the service outbox.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForOutgoing(m.svc.Outbox()))
}

func waitForOutgoing(ch <-chan Outgoing) tea.Cmd {
	return func() tea.Msg {
		out, ok := <-ch
		if !ok {
			return outboxClosedMsg{}
		}
		return outgoingMsg(out)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-inputHeight-1, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "" {
				return m, nil
			}
			m.append(line{from: "you", text: text})
			return m, m.submit(text)
		}

	case outgoingMsg:
		m.append(line{from: "focuspipe", text: msg.Body})
		return m, waitForOutgoing(m.svc.Outbox())

	case outboxClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case submitErrMsg:
		m.append(line{text: msg.err.Error(), err: true})
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit(text string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if err := svc.Submit(text, ""); err != nil {
			return submitErrMsg{err: err}
		}
		return nil
	}
}

func (m *Model) append(l line) {
	m.transcript = append(m.transcript, l)
	m.refresh()
}

func (m *Model) refresh() {
	var b strings.Builder
	for i, l := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case l.err:
			b.WriteString(errorStyle.Render("! " + l.text))
		case l.from == "you":
			b.WriteString(userStyle.Render("you: ") + l.text)
		default:
			b.WriteString(botStyle.Render(l.from+":") + "\n" + l.text)
		}
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}
	header := titleStyle.Render("FocusPipe")
	hint := hintStyle.Render(fmt.Sprintf("participant %s · esc to quit", m.svc.Participant()))
	return lipgloss.JoinVertical(lipgloss.Left,
		header+" "+hint,
		m.viewport.View(),
		m.input.View(),
	)
}
