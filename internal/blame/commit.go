package blame

import (
	"strings"
	"time"
)

// gitDefaultDateLayout is the date format of `git show` without --date.
const gitDefaultDateLayout = "Mon Jan 2 15:04:05 2006 -0700"

// CommitInfo is the metadata part of `git show` output. Patches are ignored.
type CommitInfo struct {
	Hash        string    `json:"hash"`
	Parents     []string  `json:"parents,omitempty"` // only listed for merges
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Date        string    `json:"date"`
	Time        time.Time `json:"time,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body,omitempty"`
}

// ParseCommit extracts commit metadata from default-format `git show` output.
func ParseCommit(out string) (CommitInfo, error) {
	const op = "parse commit"
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "commit ") {
		return CommitInfo{}, parseErr(op, "output does not start with a commit header")
	}

	header := strings.Fields(strings.TrimPrefix(lines[0], "commit "))
	if len(header) == 0 {
		return CommitInfo{}, parseErr(op, "commit header has no hash")
	}
	info := CommitInfo{Hash: header[0]}

	i := 1
	for ; i < len(lines) && lines[i] != ""; i++ {
		key, value, ok := strings.Cut(lines[i], ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Merge":
			info.Parents = strings.Fields(value)
		case "Author":
			info.AuthorName, info.AuthorEmail = splitIdent(value)
		case "Date":
			info.Date = value
			if t, err := time.Parse(gitDefaultDateLayout, value); err == nil {
				info.Time = t
			}
		}
	}
	if info.AuthorName == "" {
		return CommitInfo{}, parseErr(op, "commit "+info.Hash+" has no Author header")
	}

	var msg []string
	for i++; i < len(lines); i++ {
		l := lines[i]
		if l != "" && !strings.HasPrefix(l, "    ") {
			break
		}
		msg = append(msg, strings.TrimPrefix(l, "    "))
	}
	message := strings.TrimSpace(strings.Join(msg, "\n"))
	info.Subject, info.Body, _ = strings.Cut(message, "\n")
	info.Body = strings.TrimSpace(info.Body)
	return info, nil
}

// splitIdent splits "Name <email>" into its parts.
func splitIdent(s string) (name, email string) {
	open := strings.LastIndex(s, "<")
	if open == -1 || !strings.HasSuffix(s, ">") {
		return s, ""
	}
	return strings.TrimSpace(s[:open]), s[open+1 : len(s)-1]
}

// PatchOf returns the diff part of `git show` output, or "" when there is none.
func PatchOf(show string) string {
	if i := strings.Index(show, "\ndiff --git "); i >= 0 {
		return show[i+1:]
	}
	return ""
}
