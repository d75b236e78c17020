package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/koneko/internal/chain"
	"github.com/Mohsinsiddi/koneko/internal/provider"
)

// Prompter asks yes/no questions on a terminal. It is the wallet's approval
// UI: every connect, signature and transaction request is shown and must be
// answered before the wallet acts.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	mu  sync.Mutex

	// AssumeYes answers every prompt without reading input.
	AssumeYes bool
}

// NewPrompter reads answers from in and writes prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// StdPrompter prompts on stdin/stdout.
func StdPrompter() *Prompter { return NewPrompter(os.Stdin, os.Stdout) }

// Confirm prompts the user with a yes/no question. Returns true for yes.
func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	return p.ask(ctx, StyleWarning.Render(prompt))
}

// ConfirmDanger is like Confirm but styled with the error color (for destructive actions).
func (p *Prompter) ConfirmDanger(ctx context.Context, prompt string) (bool, error) {
	return p.ask(ctx, StyleError.Render("⚠ "+prompt))
}

// Approve implements provider.Approver.
func (p *Prompter) Approve(ctx context.Context, req provider.Approval) (bool, error) {
	p.mu.Lock()
	fmt.Fprintln(p.out, ApprovalBlock(req))
	p.mu.Unlock()
	return p.ask(ctx, StyleWarning.Render(approvalQuestion(req.Kind)))
}

func (p *Prompter) ask(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	if p.AssumeYes {
		fmt.Fprintln(p.out, "y")
		return true, nil
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			if a.err == io.EOF {
				return false, nil
			}
			return false, a.err
		}
		return isYes(a.line), nil
	}
}

func isYes(line string) bool {
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}

func approvalQuestion(k provider.ApprovalKind) string {
	switch k {
	case provider.ApproveConnect:
		return "Connect this account?"
	case provider.ApproveSignature:
		return "Sign this message?"
	case provider.ApproveTransaction:
		return "Send this transaction?"
	default:
		return "Approve request?"
	}
}

// ApprovalBlock renders a wallet request for review.
func ApprovalBlock(req provider.Approval) string {
	pairs := [][2]string{{"Account", req.Account.Hex()}}
	if req.ChainID != nil {
		pairs = append(pairs, [2]string{"Chain ID", req.ChainID.String()})
	}

	title := "Wallet request"
	switch req.Kind {
	case provider.ApproveConnect:
		title = "Connection request"
	case provider.ApproveSignature:
		title = "Signature request"
		for i, line := range strings.Split(req.Message, "\n") {
			key := ""
			if i == 0 {
				key = "Message"
			}
			pairs = append(pairs, [2]string{key, line})
		}
	case provider.ApproveTransaction:
		title = "Transaction request"
		to := "(contract creation)"
		if req.To != nil {
			to = req.To.Hex()
		}
		pairs = append(pairs, [2]string{"To", to})
		if req.Value != nil {
			pairs = append(pairs, [2]string{"Value", chain.FormatEther(req.Value) + " ETH"})
		}
		if len(req.Data) >= 4 {
			pairs = append(pairs, [2]string{"Method", hexutil.Encode(req.Data[:4])})
		}
		if req.Gas > 0 {
			pairs = append(pairs, [2]string{"Gas limit", fmt.Sprintf("%d", req.Gas)})
		}
	}
	return KeyValueBlock(title, pairs)
}
