package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kokistudios/blame/internal/blame"
)

func RenderMarkdown(w io.Writer, md string) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fallback: print raw
		fmt.Fprintln(w, md)
		return
	}

	out, err := renderer.Render(md)
	if err != nil {
		fmt.Fprintln(w, md)
		return
	}

	fmt.Fprint(w, out)
}

// CommitMarkdown lays out a commit and its patch for RenderMarkdown.
func CommitMarkdown(info blame.CommitInfo, patch string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", info.Subject)
	fmt.Fprintf(&b, "**commit** `%s`  \n", info.Hash)
	if len(info.Parents) > 0 {
		fmt.Fprintf(&b, "**merge** %s  \n", strings.Join(info.Parents, " "))
	}
	author := info.AuthorName
	if info.AuthorEmail != "" {
		author += " <" + info.AuthorEmail + ">"
	}
	fmt.Fprintf(&b, "**author** %s  \n", author)
	fmt.Fprintf(&b, "**date** %s\n", info.Date)
	if info.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", info.Body)
	}
	if patch = strings.TrimSpace(patch); patch != "" {
		fmt.Fprintf(&b, "\n```diff\n%s\n```\n", patch)
	}
	return b.String()
}
