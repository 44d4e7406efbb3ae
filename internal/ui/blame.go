package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kokistudios/blame/internal/blame"
)

// MaxAuthorWidth caps the author column; longer names are cut with "...".
const MaxAuthorWidth = 20

// revisionWidth is enough for git's default abbreviation plus the boundary marker.
const revisionWidth = 9

// FitAuthor pads or truncates name to exactly width display cells.
func FitAuthor(name string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(name)
	if w <= width {
		return name + strings.Repeat(" ", width-w)
	}
	const ellipsis = "..."
	if width <= len(ellipsis) {
		return ellipsis[:width]
	}
	var b strings.Builder
	used := 0
	for _, r := range name {
		rw := lipgloss.Width(string(r))
		if used+rw > width-len(ellipsis) {
			break
		}
		b.WriteRune(r)
		used += rw
	}
	b.WriteString(strings.Repeat(" ", width-len(ellipsis)-used))
	b.WriteString(ellipsis)
	return b.String()
}

// AuthorWidth is the author column width for recs: the longest author,
// capped at MaxAuthorWidth.
func AuthorWidth(recs []blame.Record) int {
	width := 0
	for _, r := range recs {
		if w := lipgloss.Width(r.Author); w > width {
			width = w
		}
	}
	if width > MaxAuthorWidth {
		width = MaxAuthorWidth
	}
	return width
}

// FormatBlameLine renders one record as an annotated source line.
func FormatBlameLine(rec blame.Record, authorWidth, numberWidth int) string {
	rev := rec.Revision
	if len(rev) > revisionWidth {
		rev = rev[:revisionWidth]
	}
	num := strconv.Itoa(rec.LineNumber)
	if pad := numberWidth - len(num); pad > 0 {
		num = strings.Repeat(" ", pad) + num
	}
	return fmt.Sprintf("%s (%s %s %s) %s",
		revisionStyle.Render(fmt.Sprintf("%-*s", revisionWidth, rev)),
		authorStyle.Render(FitAuthor(rec.Author, authorWidth)),
		dimStyle.Render(rec.When()),
		num,
		rec.Content)
}

// RenderBlame writes every record with the author column padded to the
// widest author so the source text lines up.
func RenderBlame(w io.Writer, recs []blame.Record) {
	authorWidth := AuthorWidth(recs)
	numberWidth := 1
	for _, r := range recs {
		if n := len(strconv.Itoa(r.LineNumber)); n > numberWidth {
			numberWidth = n
		}
	}
	for _, r := range recs {
		fmt.Fprintln(w, FormatBlameLine(r, authorWidth, numberWidth))
	}
}

// RecordDetails prints a single attribution as a key-value block.
func RecordDetails(rec blame.Record, mode blame.ModeMetadata, modeSource string) {
	rev := rec.RevisionNormalized
	if rec.Boundary() {
		rev += Dim("  (boundary commit)")
	}
	if rec.Uncommitted() {
		rev = Yellow("not committed yet")
	}
	KeyValue("Commit", rev)
	KeyValue("Author", rec.Author)
	KeyValue("Date  ", rec.When())
	if rec.SourceFile != "" {
		KeyValue("File  ", rec.SourceFile)
	}
	KeyValue("Line  ", strconv.Itoa(rec.LineNumber))
	if mode.Key != blame.ModeNone {
		Detail("mode", fmt.Sprintf("%s (%s)", mode.Key, modeSource))
	}
}

// RenderWalk prints the revisions found while walking a line back, newest first.
func RenderWalk(res blame.WalkResult) {
	if len(res.Steps) == 0 {
		EmptyState("No revisions found.")
		return
	}
	rows := make([][]string, 0, len(res.Steps))
	for i, s := range res.Steps {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.Record.ShortRevision(revisionWidth),
			s.Record.Author,
			s.Record.When(),
			s.Record.SourceFile,
			strings.TrimSpace(s.Record.Content),
		})
	}
	Table([]string{"#", "COMMIT", "AUTHOR", "DATE", "FILE", "LINE"}, rows)
	fmt.Fprintln(os.Stderr)
	Detail("stopped:", stopLabel(res.Stop))
}

// stopLabel colours a stop reason by whether the walk reached the beginning.
func stopLabel(r blame.StopReason) string {
	switch r {
	case blame.StopTerminal:
		return Green(r.String())
	case blame.StopLimit, blame.StopFixedPoint:
		return Yellow(r.String())
	default:
		return Dim(r.String())
	}
}

// RenderModes lists the commit-skipping modes, marking current.
func RenderModes(current string) {
	rows := make([][]string, 0, 5)
	for _, m := range blame.Modes() {
		marker := " "
		if m.Key == current {
			marker = "*"
		}
		flags := strings.Join(m.ExtraFlags, " ")
		if flags == "" {
			flags = "-"
		}
		rows = append(rows, []string{marker, m.Key, flags, m.Explanation})
	}
	Table([]string{"", "MODE", "FLAGS", "DESCRIPTION"}, rows)
}
