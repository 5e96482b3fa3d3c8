// Package printer renders qserver CLI output: success and warning lines,
// progress steps, and multi-part error messages with suggested fixes.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Color is kept on for non-TTY output so piped logs stay readable;
	// NO_COLOR switches it off.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed, color.Bold)
	stepColor    = color.New(color.FgCyan)
)

// Success prints a green checkmarked message.
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		successColor.Printf("✓ %s", msg)
	} else {
		successColor.Print(msg)
	}
}

// Info prints an uncolored informational message.
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a yellow warning message.
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		warnColor.Printf("⚠️  %s", msg)
	} else {
		warnColor.Print(msg)
	}
}

// Error prints a formatted error to stderr: a red title, an explanation and
// an optional list of suggested fixes. The returned error carries only the
// title; commands hand it to cobra, which stays silent (SilenceErrors) so
// the message is not printed twice.
func Error(title string, explanation string, suggestions []string) error {
	errColor.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Step prints a cyan progress line for long-running commands such as
// "qserver wait" and "qserver monitor".
func Step(format string, a ...any) {
	stepColor.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain line.
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints a plain formatted message.
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}
