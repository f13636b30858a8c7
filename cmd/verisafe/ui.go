package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/layer-3/verisafe/service"
	"github.com/layer-3/verisafe/transport/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Start the terminal interface",
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := tui.NewNotifier()
	a, err := newApp(ctx, cfg, logger, devnetMode, appOptions{
		interactive: true,
		controller:  []service.Option{service.WithOnChange(notifier.Notify)},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(ctx, a.ctrl, notifier, tui.Info{Network: a.networkLabel(), Contract: a.contract})
}

func (a *app) networkLabel() string {
	if a.devnet != nil {
		return "Devnet"
	}
	return a.chain.ChainName + " Testnet"
}
