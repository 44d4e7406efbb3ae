package blame

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// LineResolver is the query surface callers depend on; Resolver and the
// caching layer both implement it.
type LineResolver interface {
	ResolveLine(ctx context.Context, path string, line int, skip SkipList, mode ModeMetadata) (Record, error)
	ResolveFile(ctx context.Context, path string, mode ModeMetadata) ([]Record, error)
}

// Options is the read-only configuration a Resolver is built with.
type Options struct {
	// ExtraFlags are user flags appended after the built-in blame flags.
	ExtraFlags []string
	// RelativeDates asks git for "3 days ago" style dates.
	RelativeDates bool
	// Logger receives debug output; nil discards it.
	Logger *log.Logger
}

// Resolver runs blame queries through an Executor and parses the output. It
// keeps no state between calls and is safe for concurrent use.
type Resolver struct {
	exec   Executor
	opts   Options
	logger *log.Logger
}

var _ LineResolver = (*Resolver)(nil)

// NewResolver returns a Resolver that runs git through exec.
func NewResolver(exec Executor, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	opts.ExtraFlags = append([]string(nil), opts.ExtraFlags...)
	return &Resolver{exec: exec, opts: opts, logger: logger}
}

// ResolveLine blames a single line. Output that does not yield exactly one
// record for that line is a ParseFailure.
func (r *Resolver) ResolveLine(ctx context.Context, path string, line int, skip SkipList, mode ModeMetadata) (Record, error) {
	const op = "resolve line"
	if line < 1 {
		return Record{}, argErr(op, "line %d is not a 1-based line number", line)
	}
	out, base, err := r.blame(ctx, op, path, SingleLine(line), skip, mode)
	if err != nil {
		return Record{}, err
	}

	var recs []Record
	for _, raw := range outputLines(out) {
		rec, err := ParseLineExpect(raw, r.opts.RelativeDates, Expect{Line: line, File: base})
		if err != nil {
			return Record{}, fmt.Errorf("line %d of %s: %w", line, path, err)
		}
		recs = append(recs, rec)
	}
	switch {
	case len(recs) == 0:
		return Record{}, parseErr(op, fmt.Sprintf("no blame output for line %d of %s", line, path))
	case len(recs) > 1:
		return Record{}, parseErr(op, fmt.Sprintf("expected one record for line %d of %s, got %d", line, path, len(recs)))
	case recs[0].LineNumber != line:
		return Record{}, parseErr(op, fmt.Sprintf("asked for line %d of %s, git answered for line %d", line, path, recs[0].LineNumber))
	}
	return recs[0], nil
}

// ResolveFile blames every line of a file. Lines that fail to parse are
// skipped; only output with nothing parseable at all is a ParseFailure.
func (r *Resolver) ResolveFile(ctx context.Context, path string, mode ModeMetadata) ([]Record, error) {
	return r.resolveTolerant(ctx, "resolve file", path, nil, nil, mode)
}

// ResolveRange blames lines start..end inclusive, tolerating unparseable lines
// like ResolveFile.
func (r *Resolver) ResolveRange(ctx context.Context, path string, start, end int, skip SkipList, mode ModeMetadata) ([]Record, error) {
	return r.resolveTolerant(ctx, "resolve range", path, &LineRange{Start: start, End: end}, skip, mode)
}

func (r *Resolver) resolveTolerant(ctx context.Context, op, path string, lines *LineRange, skip SkipList, mode ModeMetadata) ([]Record, error) {
	out, base, err := r.blame(ctx, op, path, lines, skip, mode)
	if err != nil {
		return nil, err
	}

	// git answers in file order, so each line is expected to follow the last.
	prev := 0
	if lines != nil {
		prev = lines.Start - 1
	}
	raws := outputLines(out)
	recs := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := ParseLineExpect(raw, r.opts.RelativeDates, Expect{Line: prev + 1, File: base})
		if err != nil {
			r.logger.Debug("skipping unattributable line", "path", path, "err", err)
			prev++
			continue
		}
		prev = rec.LineNumber
		recs = append(recs, rec)
	}
	if len(recs) == 0 && len(raws) > 0 {
		return nil, parseErr(op, fmt.Sprintf("failed to parse anything for %s; has git's output format changed?", path))
	}
	if skipped := len(raws) - len(recs); skipped > 0 {
		r.logger.Debug("blame lines skipped", "path", path, "skipped", skipped, "parsed", len(recs))
	}
	return recs, nil
}

func (r *Resolver) blame(ctx context.Context, op, path string, lines *LineRange, skip SkipList, mode ModeMetadata) (out, base string, err error) {
	dir, base, err := locateFile(op, path)
	if err != nil {
		return "", "", err
	}
	args, err := BuildBlameArgs(BlameQuery{
		Path:          base,
		Lines:         lines,
		Skip:          skip,
		Mode:          mode,
		ExtraFlags:    r.opts.ExtraFlags,
		RelativeDates: r.opts.RelativeDates,
	})
	if err != nil {
		return "", "", err
	}
	out, err = r.run(ctx, op, dir, args)
	return out, base, err
}

// ShowCommit returns `git show` output for rev, run from path's directory.
func (r *Resolver) ShowCommit(ctx context.Context, path, rev string) (string, error) {
	const op = "show commit"
	args, err := BuildShowCommitArgs(rev)
	if err != nil {
		return "", err
	}
	dir, err := locateDir(op, path)
	if err != nil {
		return "", err
	}
	return r.run(ctx, op, dir, args)
}

// CommitSubject returns the first line of rev's commit message.
func (r *Resolver) CommitSubject(ctx context.Context, path, rev string) (string, error) {
	const op = "commit subject"
	args, err := BuildShowSubjectArgs(rev)
	if err != nil {
		return "", err
	}
	dir, err := locateDir(op, path)
	if err != nil {
		return "", err
	}
	out, err := r.run(ctx, op, dir, args)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitMetadata returns the header fields and message of rev.
func (r *Resolver) CommitMetadata(ctx context.Context, path, rev string) (CommitInfo, error) {
	out, err := r.ShowCommit(ctx, path, rev)
	if err != nil {
		return CommitInfo{}, err
	}
	return ParseCommit(out)
}

// HeadRevision returns the commit HEAD points at in path's repository.
func (r *Resolver) HeadRevision(ctx context.Context, path string) (string, error) {
	const op = "rev-parse head"
	dir, err := locateDir(op, path)
	if err != nil {
		return "", err
	}
	out, err := r.run(ctx, op, dir, BuildRevParseHeadArgs())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Resolver) run(ctx context.Context, op, dir string, args []string) (string, error) {
	r.logger.Debug("running git", "dir", dir, "args", args)
	out, err := r.exec.Execute(ctx, dir, args)
	if err != nil {
		return "", toolErr(op, err)
	}
	return out, nil
}

// locateFile splits path into the directory git runs in and the name git is
// given. Symlinks are resolved so git sees the file inside its repository.
func locateFile(op, path string) (dir, base string, err error) {
	if strings.TrimSpace(path) == "" {
		return "", "", argErr(op, "target path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", argErr(op, "invalid path %q: %v", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}

// locateDir is locateFile for commands that only need a directory inside the
// repository; path may name a file or a directory.
func locateDir(op, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", argErr(op, "path is empty")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Abs(path)
	}
	dir, _, err := locateFile(op, path)
	return dir, err
}

func outputLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
