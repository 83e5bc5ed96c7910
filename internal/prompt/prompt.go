// Package prompt provides injectable input sources for values the operator
// may supply either up front (environment, config) or interactively.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Source returns the value for a key, prompting for it if the implementation
// is interactive. An empty string means no value was supplied.
type Source interface {
	Value(key string) (string, error)
}

// Question describes how to ask the operator for a key.
type Question struct {
	Label  string
	Secret bool
}

// Terminal asks questions on Out and reads answers from In.
// Secret answers are read without echo when In is a terminal.
type Terminal struct {
	In        *os.File
	Out       io.Writer
	Questions map[string]Question

	reader *bufio.Reader
}

// NewTerminal returns a Terminal bound to stdin/stdout.
func NewTerminal(questions map[string]Question) *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stdout, Questions: questions}
}

// Value prompts for key. Keys without a registered Question are prompted
// with the key name itself. EOF is an empty answer, not an error.
func (t *Terminal) Value(key string) (string, error) {
	q, ok := t.Questions[key]
	if !ok {
		q = Question{Label: key}
	}
	fmt.Fprint(t.Out, q.Label+": ")

	fd := int(t.In.Fd())
	if q.Secret && term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(t.Out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", key, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return strings.TrimSpace(line), nil
}

// Static answers from a fixed map. Used for tests and non-interactive runs.
type Static map[string]string

// Value returns the mapped value, or "" when the key is absent.
func (s Static) Value(key string) (string, error) {
	return s[key], nil
}

// Chain returns the first non-empty value from its sources, in order.
type Chain []Source

// Value implements Source.
func (c Chain) Value(key string) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		v, err := src.Value(key)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// Confirm asks src for key and reports whether the answer is exactly "y" or "Y".
func Confirm(src Source, key string) (bool, error) {
	answer, err := src.Value(key)
	if err != nil {
		return false, err
	}
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y", nil
}
