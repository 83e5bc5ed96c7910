// Package ui formats operator-facing output: progress steps on stdout,
// labeled warnings and errors on stderr.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetWriter overrides the stderr writer. Nil restores os.Stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	stderr = w
}

// SetStdout overrides the stdout writer. Nil restores os.Stdout.
func SetStdout(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	stdout = w
}

// Stdout returns the current stdout writer.
func Stdout() io.Writer { return stdout }

// --- Color detection ---

var stdoutColor = detectColor(os.Stdout)
var stderrColor = detectColor(os.Stderr)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection.
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

// ColorEnabled reports whether stdout color is enabled.
func ColorEnabled() bool {
	return stdoutColor
}

func ansi(code, s string) string {
	if !stdoutColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func ansiStderr(code, s string) string {
	if !stderrColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s wrapped in bold ANSI codes (stdout).
func Bold(s string) string { return ansi("1", s) }

// Dim returns s wrapped in dim ANSI codes (stdout).
func Dim(s string) string { return ansi("2", s) }

// Green returns s wrapped in green ANSI codes (stdout).
func Green(s string) string { return ansi("32", s) }

// Red returns s wrapped in red ANSI codes (stdout).
func Red(s string) string { return ansi("31", s) }

// Yellow returns s wrapped in yellow ANSI codes (stdout).
func Yellow(s string) string { return ansi("33", s) }

// Cyan returns s wrapped in cyan ANSI codes (stdout).
func Cyan(s string) string { return ansi("36", s) }

// Section prints a bold title with a thin underline.
func Section(title string) {
	fmt.Fprintln(stdout, Bold(title))
	fmt.Fprintln(stdout, Dim(strings.Repeat("─", len([]rune(title)))))
}

func OKTag() string   { return Green("✓") }
func FailTag() string { return Red("✗") }
func WarnTag() string { return Yellow("⚠") }
func InfoTag() string { return Cyan("ℹ") }

// Step prints one numbered stage of a multi-stage operation, e.g. "[3/7] Building image".
func Step(n, total int, msg string) {
	fmt.Fprintf(stdout, "%s %s\n", Dim(fmt.Sprintf("[%d/%d]", n, total)), msg)
}

// Done prints msg behind a success tag.
func Done(msg string) {
	fmt.Fprintf(stdout, "%s %s\n", OKTag(), msg)
}

// Failed prints msg behind a failure tag.
func Failed(msg string) {
	fmt.Fprintf(stdout, "%s %s\n", FailTag(), msg)
}

// --- Warn / Error / Info (stderr, colored prefix) ---

// Warn prints a user-facing warning to stderr.
func Warn(msg string) {
	fmt.Fprintf(stderr, "%s %s\n", ansiStderr("33", "Warning:"), msg)
}

// Warnf prints a formatted user-facing warning to stderr.
func Warnf(format string, args ...any) {
	Warn(fmt.Sprintf(format, args...))
}

// Error prints a user-facing error to stderr.
func Error(msg string) {
	fmt.Fprintf(stderr, "%s %s\n", ansiStderr("31", "Error:"), msg)
}

// Errorf prints a formatted user-facing error to stderr.
func Errorf(format string, args ...any) {
	Error(fmt.Sprintf(format, args...))
}

// Info prints a message to stderr with no prefix.
func Info(msg string) {
	fmt.Fprintln(stderr, msg)
}

// Infof prints a formatted message to stderr with no prefix.
func Infof(format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...)
}
