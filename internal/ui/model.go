// Package ui is the terminal front end of the payment panel.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/x402-foundation/paypanel/panel"
)

// TriggerFunc runs one payment attempt
type TriggerFunc func(ctx context.Context) (panel.Result, error)

// Info is the static panel description shown in the header
type Info struct {
	Network  string
	Token    string
	Endpoint string
}

// StateMsg reports a phase change of the running attempt.
type StateMsg panel.State

// WalletMsg reports the connected wallet address, "" when cleared.
type WalletMsg string

// ResultMsg shows a result, or clears the result area when Result is nil.
type ResultMsg struct {
	Result *panel.Result
}

// AttemptDoneMsg is sent when a triggered attempt returns.
type AttemptDoneMsg struct {
	Result panel.Result
	Err    error
}

// Model is the Bubble Tea model for the payment panel.
type Model struct {
	ctx     context.Context
	info    Info
	trigger TriggerFunc

	busy     bool
	state    panel.State
	wallet   string
	result   *panel.Result
	Quitting bool
}

// NewModel creates the panel model. ctx bounds every attempt it triggers.
func NewModel(ctx context.Context, info Info, trigger TriggerFunc) Model {
	return Model{ctx: ctx, info: info, trigger: trigger}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit

		case "enter", " ", "p":
			// The button is disabled while an attempt runs
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.state = panel.StateConnecting
			return m, m.runAttempt()
		}

	case StateMsg:
		m.state = panel.State(msg)

	case WalletMsg:
		m.wallet = string(msg)

	case ResultMsg:
		m.result = msg.Result

	case AttemptDoneMsg:
		if errors.Is(msg.Err, panel.ErrAttemptInFlight) {
			return m, nil
		}
		m.busy = false
		m.state = panel.StateIdle
		result := msg.Result
		m.result = &result
	}

	return m, nil
}

func (m Model) runAttempt() tea.Cmd {
	ctx, trigger := m.ctx, m.trigger
	return func() tea.Msg {
		result, err := trigger(ctx)
		return AttemptDoneMsg{Result: result, Err: err}
	}
}

// Busy reports whether an attempt is running
func (m Model) Busy() bool { return m.busy }

// Result returns the displayed result
func (m Model) Result() *panel.Result { return m.result }

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(StyleTitle.Render("x402 Payment Panel") + "\n")
	sb.WriteString(StyleMeta.Render(fmt.Sprintf("%s on %s", m.info.Token, m.info.Network)) + "\n")
	sb.WriteString(StyleMeta.Render(m.info.Endpoint) + "\n\n")

	if m.wallet != "" {
		sb.WriteString("Wallet: " + StyleAddress.Render(m.wallet) + "\n\n")
	}

	if m.busy {
		sb.WriteString(StyleButtonDisabled.Render(buttonLabel(m.state)) + "\n")
	} else {
		sb.WriteString(StyleButton.Render("Pay & Fetch") + "\n")
	}

	if m.result != nil {
		text := m.result.Text()
		if m.result.Err != nil {
			text = StyleError.Render(text)
		}
		sb.WriteString("\n" + StyleResult.Render(text) + "\n")
	}

	sb.WriteString("\n" + StyleMeta.Render("enter pay · q quit") + "\n")
	return sb.String()
}

func buttonLabel(state panel.State) string {
	switch state {
	case panel.StateConnecting:
		return "Connecting wallet…"
	case panel.StateResolving:
		return "Resolving token…"
	case panel.StatePaying:
		return "Paying…"
	default:
		return "Working…"
	}
}

// ProgramRenderer forwards panel updates to a running Bubble Tea program
type ProgramRenderer struct {
	send func(tea.Msg)
}

// NewProgramRenderer creates a renderer delivering updates through send,
// usually (*tea.Program).Send
func NewProgramRenderer(send func(tea.Msg)) *ProgramRenderer {
	return &ProgramRenderer{send: send}
}

func (r *ProgramRenderer) RenderState(state panel.State) { r.send(StateMsg(state)) }

func (r *ProgramRenderer) RenderWallet(address string) { r.send(WalletMsg(address)) }

func (r *ProgramRenderer) RenderResult(result *panel.Result) { r.send(ResultMsg{Result: result}) }
