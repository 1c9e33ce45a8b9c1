// Package prompt reads credentials from a terminal, falling back to plain
// line reads when stdin is piped.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for input.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm func(fd int) bool
}

// New returns a Prompter bound to stdin and stderr.
func New() *Prompter {
	return &Prompter{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stderr,
		fd:     int(os.Stdin.Fd()),
		isTerm: term.IsTerminal,
	}
}

// NewWithReader returns a Prompter that reads from r and never treats it as a terminal.
func NewWithReader(r io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:     bufio.NewReader(r),
		out:    out,
		fd:     -1,
		isTerm: func(int) bool { return false },
	}
}

// Line prints label and returns the trimmed line typed by the user.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ":")), err)
	}
	return strings.TrimSpace(line), nil
}

// Password reads a secret without echoing it when stdin is a terminal.
// Only the trailing newline is stripped; surrounding spaces are kept.
func (p *Prompter) Password(label string) (string, error) {
	if !p.isTerm(p.fd) {
		fmt.Fprint(p.out, label)
		line, err := p.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(p.out, label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
