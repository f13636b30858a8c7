package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/service"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

const (
	copyFeedback  = 2 * time.Second
	shakeInterval = 60 * time.Millisecond
)

// shakeOffsets is the horizontal offset of the age field per animation frame.
var shakeOffsets = []int{3, 0, 3, 0, 2, 0}

// Controller is the part of service.Controller the screens drive.
type Controller interface {
	Snapshot() service.State
	StartVerification(ctx context.Context) error
	ResetToHome(ctx context.Context) error
	SetAge(input string)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	Verify(ctx context.Context, input string) (*core.Attempt, error)
}

type changedMsg struct{}

type actionDoneMsg struct {
	err       error
	syncInput bool
}

type shakeMsg struct{}

type copyResetMsg struct{ seq int }

// Info is the static part of the main screen.
type Info struct {
	Network  string
	Contract common.Address
}

// Model is the bubbletea model for both screens.
type Model struct {
	ctx      context.Context
	ctrl     Controller
	notifier *Notifier
	info     Info
	styles   Styles

	state   service.State
	input   textinput.Model
	spinner spinner.Model
	status  string
	shake   int
	copied  string
	copySeq int
}

func NewModel(ctx context.Context, ctrl Controller, notifier *Notifier, info Info) Model {
	ti := textinput.New()
	ti.Placeholder = "Enter age (1-150)"
	ti.CharLimit = 8
	ti.Width = 20
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	state := ctrl.Snapshot()
	ti.SetValue(state.Age)

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		notifier: notifier,
		info:     info,
		styles:   DefaultStyles(),
		state:    state,
		input:    ti,
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.notifier != nil {
		cmds = append(cmds, m.notifier.wait(m.ctx))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		wasConnected := m.state.Connected
		m.state = m.ctrl.Snapshot()
		// The wallet dropping the session clears the age too.
		if wasConnected && !m.state.Connected {
			m.input.SetValue(m.state.Age)
		}
		if m.notifier != nil {
			return m, m.notifier.wait(m.ctx)
		}
		return m, nil

	case actionDoneMsg:
		m.state = m.ctrl.Snapshot()
		if msg.syncInput {
			m.input.SetValue(m.state.Age)
		}
		switch {
		case msg.err == nil, core.IsUserRejection(msg.err):
		case errors.Is(msg.err, core.ErrInvalidAge):
			m.shake = len(shakeOffsets)
			return m, shakeTick()
		case m.state.Error == "" && m.state.Notice == "":
			m.status = msg.err.Error()
		}
		return m, nil

	case shakeMsg:
		if m.shake > 0 {
			m.shake--
		}
		if m.shake > 0 {
			return m, shakeTick()
		}
		return m, nil

	case copyResetMsg:
		if msg.seq == m.copySeq {
			m.copied = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.state.View == core.ViewMain {
			return m.updateMain(msg)
		}
		return m.updateHome(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateHome(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter", "s":
		m.status = ""
		return m, m.action(false, m.ctrl.StartVerification)
	}
	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.status = ""
		m.shake = 0
		return m, m.action(true, m.ctrl.ResetToHome)
	case "ctrl+t":
		return m.copy("contract", m.contract())
	}

	if !m.state.Connected {
		switch msg.String() {
		case "enter", "c":
			if m.state.Loading {
				return m, nil
			}
			m.status = ""
			return m, m.action(false, m.ctrl.Connect)
		case "q":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+d":
		m.status = ""
		return m, m.action(true, func(ctx context.Context) error {
			m.ctrl.Disconnect(ctx)
			return nil
		})
	case "ctrl+y":
		return m.copy("account", m.state.Account)
	case "enter":
		input := m.input.Value()
		if m.state.Loading || strings.TrimSpace(input) == "" {
			return m, nil
		}
		m.status = ""
		m.shake = 0
		return m, m.action(false, func(ctx context.Context) error {
			_, err := m.ctrl.Verify(ctx, input)
			return err
		})
	}

	if m.state.Loading {
		return m, nil
	}
	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.ctrl.SetAge(v)
		m.state.Age = v
	}
	return m, cmd
}

// action runs fn off the event loop and reports back with actionDoneMsg.
func (m Model) action(syncInput bool, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: fn(ctx), syncInput: syncInput}
	}
}

func (m Model) copy(field string, addr common.Address) (tea.Model, tea.Cmd) {
	if addr == (common.Address{}) {
		return m, nil
	}
	if err := clipboardWriteAll(addr.Hex()); err != nil {
		m.status = "Copy failed: " + err.Error()
		return m, nil
	}
	m.copySeq++
	m.copied = field
	seq := m.copySeq
	return m, tea.Tick(copyFeedback, func(time.Time) tea.Msg { return copyResetMsg{seq: seq} })
}

func shakeTick() tea.Cmd {
	return tea.Tick(shakeInterval, func(time.Time) tea.Msg { return shakeMsg{} })
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("VeriSafe"))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtitle.Render("Privacy-Preserving Age Verification"))
	b.WriteString("\n\n")

	if m.state.View == core.ViewMain {
		b.WriteString(m.viewMain())
	} else {
		b.WriteString(m.viewHome())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.status))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewHome() string {
	var card strings.Builder
	card.WriteString(m.styles.Title.Render("Welcome to VeriSafe"))
	card.WriteString("\n\n")
	card.WriteString("Securely and privately verify if you meet age requirements without revealing your exact age. ")
	card.WriteString("Your data is processed on-chain using Fully Homomorphic Encryption (FHE) technology, ensuring end-to-end privacy protection.")
	card.WriteString("\n\n")
	card.WriteString(m.styles.Button.Render("Start Verification"))

	return m.styles.Card.Render(card.String()) + "\n\n" +
		m.styles.Muted.Render("Powered by FHE  ·  enter start  ·  q quit")
}

func (m Model) viewMain() string {
	var card strings.Builder
	s := m.state

	if s.Connected {
		line := "Connected: " + shortAddress(s.Account, 6, 4)
		if m.copied == "account" {
			line += " " + m.styles.Copied.Render("✓")
		}
		card.WriteString(line)
		card.WriteString("\n\n")

		card.WriteString("Enter your age:\n")
		offset := 0
		if m.shake > 0 {
			offset = shakeOffsets[len(shakeOffsets)-m.shake]
		}
		card.WriteString(lipgloss.NewStyle().PaddingLeft(offset).Render(m.input.View()))
		card.WriteString("\n\n")

		switch {
		case s.Loading:
			card.WriteString(m.styles.Disabled.Render(fmt.Sprintf("%s Verifying... (%s)", m.spinner.View(), s.Stage)))
		case strings.TrimSpace(m.input.Value()) == "":
			card.WriteString(m.styles.Disabled.Render("Verify Age"))
		default:
			card.WriteString(m.styles.Button.Render("Verify Age"))
		}

		if s.Error != "" {
			card.WriteString("\n\n")
			card.WriteString(m.styles.Error.Render(s.Error))
		}
		if s.Result != nil {
			card.WriteString("\n\nVerification Result:\n")
			if s.Result.Qualified {
				card.WriteString(m.styles.Success.Render("✅ " + s.Result.Label()))
			} else {
				card.WriteString(m.styles.Failure.Render("❌ " + s.Result.Label()))
			}
		}
	} else {
		if s.Loading {
			card.WriteString(m.styles.Disabled.Render(m.spinner.View() + " Connecting..."))
		} else {
			card.WriteString(m.styles.Button.Render("Connect Wallet"))
		}
		if s.Notice != "" {
			card.WriteString("\n\n")
			card.WriteString(m.styles.Notice.Render(s.Notice))
		}
		if s.Error != "" {
			card.WriteString("\n\n")
			card.WriteString(m.styles.Error.Render(s.Error))
		}
	}

	var info strings.Builder
	info.WriteString(m.styles.Muted.Render("Network: " + m.info.Network))
	info.WriteString("\n")
	if m.copied == "contract" {
		info.WriteString(m.styles.Copied.Render("Contract: Copied!"))
	} else {
		info.WriteString(m.styles.Muted.Render("Contract: " + shortAddress(m.contract(), 10, 8)))
	}

	help := "esc home  ·  ctrl+t copy contract"
	if s.Connected {
		help = "enter verify  ·  ctrl+y copy account  ·  ctrl+d disconnect  ·  " + help
	} else {
		help = "enter connect  ·  " + help
	}

	return m.styles.Card.Render(card.String()) + "\n\n" + info.String() + "\n\n" + m.styles.Muted.Render(help)
}

func (m Model) contract() common.Address {
	if m.state.Contract != (common.Address{}) {
		return m.state.Contract
	}
	return m.info.Contract
}

// shortAddress keeps the first head and last tail characters of the hex form.
func shortAddress(a common.Address, head, tail int) string {
	h := a.Hex()
	if len(h) <= head+tail {
		return h
	}
	return h[:head] + "..." + h[len(h)-tail:]
}
