package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/layer-3/verisafe/core"
)

// Request describes something the wallet needs the user to confirm.
type Request struct {
	Method string // JSON-RPC method the request corresponds to
	Detail string
}

// Approver decides whether the user accepts a wallet request. A decline is
// reported as a core.ProviderError with CodeUserRejected.
type Approver interface {
	Approve(ctx context.Context, req Request) error
}

// AutoApprove accepts every request. Used where the user's click is the consent.
type AutoApprove struct{}

func (AutoApprove) Approve(context.Context, Request) error { return nil }

// PromptApprover asks on a terminal.
type PromptApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) Approve(ctx context.Context, req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "%s\n%s\nApprove? [y/N] ", req.Method, req.Detail); err != nil {
		return err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return core.NewProviderError(core.CodeUserRejected, "no answer")
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return core.NewProviderError(core.CodeUserRejected, "User rejected the request.")
}
