// Package cliutil holds shared console output helpers for the CLI tooling.
package cliutil

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// defaultTableWidth is used when the output is not a terminal.
const defaultTableWidth = 120

// NewTable creates a table writer sized to the terminal, with the style used
// across all tabular output.
func NewTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetAllowedRowLength(terminalWidth(out))
	return t
}

func terminalWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultTableWidth
}

// Summary prints a one-line count summary after a table, choosing the
// singular or plural noun.
func Summary(out io.Writer, count int, singular, plural string) {
	noun := plural
	if count == 1 {
		noun = singular
	}
	_, _ = fmt.Fprintf(out, "%d %s\n", count, noun)
}

// NoResults prints a standard empty-result message.
func NoResults(out io.Writer, msg string) {
	_, _ = fmt.Fprintln(out, msg)
}
