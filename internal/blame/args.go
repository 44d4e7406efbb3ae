package blame

import (
	"fmt"
	"strings"
)

// LineRange is an inclusive, 1-based range of lines.
type LineRange struct {
	Start int
	End   int
}

// SingleLine returns the range covering only line n.
func SingleLine(n int) *LineRange {
	return &LineRange{Start: n, End: n}
}

func (r LineRange) String() string {
	return fmt.Sprintf("%d,%d", r.Start, r.End)
}

// BlameQuery holds everything that shapes one git blame invocation.
type BlameQuery struct {
	Path          string
	Lines         *LineRange // nil blames the whole file
	Skip          SkipList
	Mode          ModeMetadata
	ExtraFlags    []string
	RelativeDates bool
}

// BuildBlameArgs returns the git arguments (without the binary) for q.
//
// --show-name is forced so lines moved in from other files stay attributable;
// -w with --minimal keeps whitespace-only edits from claiming lines. Every
// skipped revision becomes --ignore-rev, so git attributes the line to the next
// older revision instead. User flags come after the built-ins and before "--".
func BuildBlameArgs(q BlameQuery) ([]string, error) {
	const op = "build blame args"
	if strings.TrimSpace(q.Path) == "" {
		return nil, argErr(op, "target path is empty")
	}
	if q.Lines != nil {
		if q.Lines.Start < 1 {
			return nil, argErr(op, "line range %s starts before line 1", q.Lines)
		}
		if q.Lines.Start > q.Lines.End {
			return nil, argErr(op, "line range %s is inverted", q.Lines)
		}
	}
	for _, rev := range q.Skip {
		if err := validateRevision(op, rev); err != nil {
			return nil, err
		}
	}

	args := []string{"blame", "--show-name", "--minimal", "-w"}
	args = append(args, q.Mode.ExtraFlags...)
	if q.Lines != nil {
		args = append(args, "-L", q.Lines.String())
	}
	for _, rev := range q.Skip {
		args = append(args, "--ignore-rev", rev)
	}
	if q.RelativeDates {
		args = append(args, "--date=relative")
	}
	args = append(args, q.ExtraFlags...)
	args = append(args, "--", q.Path)
	return args, nil
}

// BuildShowCommitArgs returns the arguments that print a commit with its patch.
func BuildShowCommitArgs(rev string) ([]string, error) {
	if err := validateRevision("build show args", rev); err != nil {
		return nil, err
	}
	return []string{"show", "--no-color", rev}, nil
}

// BuildShowSubjectArgs returns the arguments that print only a commit's subject.
func BuildShowSubjectArgs(rev string) ([]string, error) {
	if err := validateRevision("build subject args", rev); err != nil {
		return nil, err
	}
	return []string{"show", "--no-color", rev, "--pretty=format:%s", "--no-patch"}, nil
}

// BuildRevParseHeadArgs returns the arguments that print the HEAD commit.
func BuildRevParseHeadArgs() []string {
	return []string{"rev-parse", "HEAD"}
}

// validateRevision rejects ids that must not reach git as-is: boundary-marked
// ids (normalize first) and anything git would read as an option.
func validateRevision(op, rev string) error {
	switch {
	case rev == "":
		return argErr(op, "revision is empty")
	case IsBoundary(rev):
		return argErr(op, "revision %q still carries the boundary marker", rev)
	case strings.HasPrefix(rev, "-"):
		return argErr(op, "revision %q looks like an option", rev)
	case strings.ContainsAny(rev, " \t\r\n"):
		return argErr(op, "revision %q contains whitespace", rev)
	}
	return nil
}
