package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/verisafe/core"
	"github.com/layer-3/verisafe/service"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	verifyAge string
	verifyQR  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Connect the wallet and verify an age once",
	Example: `  verisafe verify --age 25
  verisafe verify --devnet --age 17 --qr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Reject bad input before a wallet is opened or a passphrase asked for.
		if _, err := core.ValidateAge(verifyAge); err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, logger, devnetMode, appOptions{promptIn: os.Stdin, promptOut: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer a.Close()

		return verify(ctx, a, cmd.OutOrStdout(), verifyAge, verifyQR)
	},
}

func verify(ctx context.Context, a *app, out io.Writer, age string, qr bool) error {
	if _, err := core.ValidateAge(age); err != nil {
		return err
	}

	if err := a.ctrl.Connect(ctx); err != nil {
		switch {
		case core.IsUserRejection(err):
			fmt.Fprintln(out, "Wallet connection cancelled.")
			return nil
		case errors.Is(err, core.ErrNoWallet):
			return errors.New(service.InstallWalletNotice)
		}
		return errors.New(service.ConnectionMessage(err))
	}
	defer a.ctrl.Disconnect(context.Background())

	s := a.ctrl.Snapshot()
	fmt.Fprintf(out, "Connected: %s\n", s.Account.Hex())
	if s.Error != "" {
		fmt.Fprintf(out, "Warning: %s\n", s.Error)
	}

	attempt, err := a.ctrl.Verify(ctx, age)
	if err != nil {
		if core.IsUserRejection(err) {
			fmt.Fprintln(out, "Verification cancelled.")
			return nil
		}
		return errors.New(service.VerificationMessage(err))
	}

	fmt.Fprintf(out, "Verification Result: %s\n", attempt.Outcome.Label())
	fmt.Fprintf(out, "Transaction: %s\n", attempt.TxHash.Hex())

	link := a.explorerTxURL(attempt.TxHash)
	if link == "" {
		return nil
	}
	fmt.Fprintf(out, "Explorer: %s\n", link)
	if qr {
		code, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to create QR code: %w", err)
		}
		fmt.Fprint(out, renderQR(code.Bitmap()))
	}
	return nil
}

// explorerTxURL links tx on the chain's block explorer. Devnet transactions
// have nowhere to link to.
func (a *app) explorerTxURL(tx common.Hash) string {
	if a.devnet != nil || len(a.chain.BlockExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimSuffix(a.chain.BlockExplorerURLs[0], "/") + "/tx/" + tx.Hex()
}

// renderQR draws the bitmap with two columns per module so it stays square
// in a terminal.
func renderQR(bitmap [][]bool) string {
	var b strings.Builder
	for _, row := range bitmap {
		for _, dark := range row {
			if dark {
				b.WriteString("██")
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
