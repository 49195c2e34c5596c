package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNotInteractive is returned by a Prompt that has no operator to ask.
var ErrNotInteractive = errors.New("confirmation required but input is not interactive (use --yes)")

// Prompt asks yes/no questions on a terminal. It shares one buffered
// reader with the caller so console commands and answers read from the
// same stream.
type Prompt struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt asks on out and reads answers from in.
func NewPrompt(in *bufio.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// Confirm prints question with a [y/N] suffix. Only "y" or "yes" accept;
// anything else, including end of input, declines.
func (p *Prompt) Confirm(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s [y/N] ", question)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// AutoConfirm accepts every question. It backs the --yes flag.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(string) (bool, error) { return true, nil }

// Refuse fails every question with ErrNotInteractive.
type Refuse struct{}

func (Refuse) Confirm(string) (bool, error) { return false, ErrNotInteractive }
