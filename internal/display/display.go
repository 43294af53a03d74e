// Package display renders the `sat list` output: a human-readable queue
// listing with shell-safe quoting, spec.md §6's "shell-safe string
// quoting for the listing UI" — named there as an external collaborator
// treated as a pure function, implemented here since something in this
// repo has to consume it. Coloring is grounded on the teacher's use of
// github.com/fatih/color in internal/cli/root.go.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sat-sched/sat/internal/job"
)

// Quote renders s as a POSIX shell word: wrapped in single quotes, with
// each embedded single quote closed, backslash-escaped, and reopened.
// A string needing no quoting at all (only unambiguous shell characters)
// is returned unquoted, matching common at(1)/cron(8) listing style.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if isShellSafe(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func isShellSafe(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("_-./:=@%+,", r):
		default:
			return false
		}
	}
	return true
}

// QuoteArgv joins argv into one shell-safe command line for display.
func QuoteArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = Quote(a)
	}
	return strings.Join(parts, " ")
}

// Row is one rendered queue entry.
type Row struct {
	ID       uint64
	Argv     []string
	Cwd      string
	Clock    job.ClockKind
	Deadline time.Time
}

// List writes a human-readable table of rows to w. When useColor is
// true the clock-kind badge is colored: boot-relative deadlines in cyan,
// wall-clock deadlines in yellow. When it is false the badge is plain
// text; the caller decides which.
func List(w io.Writer, rows []Row, useColor bool) {
	boot := color.New(color.FgCyan)
	wall := color.New(color.FgYellow)
	boot.EnableColor()
	wall.EnableColor()
	if !useColor {
		boot.DisableColor()
		wall.DisableColor()
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "(queue is empty)")
		return
	}

	for _, r := range rows {
		badge := wall
		label := "wall"
		if r.Clock == job.ClockBoot {
			badge = boot
			label = "boot"
		}
		fmt.Fprintf(w, "%d\t", r.ID)
		badge.Fprintf(w, "[%s]", label)
		fmt.Fprintf(w, "\t%s\t%s\t%s\n",
			r.Deadline.Format(time.RFC3339Nano),
			Quote(r.Cwd),
			QuoteArgv(r.Argv),
		)
	}
}
