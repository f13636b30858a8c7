package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/layer-3/verisafe/service"
)

// Notifier wakes the running program when the controller state changes. Pass
// Notify to service.WithOnChange. Notify never blocks, so it is safe to call
// from inside Update.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

func (n *Notifier) Notify(service.State) {
	select {
	case n.ch <- struct{}{}:
	default:
		// A wake-up is already pending; the model reads the latest snapshot.
	}
}

func (n *Notifier) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-n.ch:
			return changedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// Run shows the screens until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl Controller, notifier *Notifier, info Info, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, ctrl, notifier, info), opts...)
	_, err := p.Run()
	return err
}
