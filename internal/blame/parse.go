package blame

import (
	"regexp"
	"strconv"
	"strings"
)

// RE2 has no verbose mode, so the patterns are assembled piecewise. The source
// file group is optional: some output modes put the parenthetical directly after
// the revision and the record then has no SourceFile.
//
// Where the file name ends is ambiguous when the file name or the line content
// holds something shaped like the author block, so every grammar is compiled
// twice: lazily (file ends at the first block that parses) and greedily (file
// ends at the last one). pick chooses between the two readings.
const (
	revisionPattern = `^(?P<rev>\^?\w+)`
	authorPattern   = `\((?P<author>.+?)`
	linePattern     = `\s+(?P<line>\d+)\)`
	contentPattern  = `(?:\s(?P<content>.*))?$`

	absoluteDatePattern = `\s+(?P<date>\d{4}-\d{2}-\d{2})` +
		`\s+(?P<time>\d{2}:\d{2}:\d{2})` +
		`\s+(?P<tz>[+-]\d+)`
	relativeDatePattern = `\s+(?P<reldate>\d+[\w ,]*?\bago)`
)

func filePattern(lazy bool) string {
	if lazy {
		return `\s+(?:(?P<file>[\S ]+?)\s+)?`
	}
	return `\s+(?:(?P<file>[\S ]+)\s+)?`
}

type grammar struct {
	op     string
	lazy   *regexp.Regexp
	greedy *regexp.Regexp
	finish func(rec *Record, fields map[string]string)
}

func newGrammar(op, datePattern string, finish func(*Record, map[string]string)) grammar {
	build := func(lazy bool) *regexp.Regexp {
		return regexp.MustCompile(revisionPattern + filePattern(lazy) + authorPattern +
			datePattern + linePattern + contentPattern)
	}
	return grammar{op: op, lazy: build(true), greedy: build(false), finish: finish}
}

var absoluteGrammar = newGrammar("parse line", absoluteDatePattern, func(rec *Record, f map[string]string) {
	rec.Date = f["date"]
	rec.Time = f["time"]
	rec.TimezoneOffset = f["tz"]
})

var relativeGrammar = newGrammar("parse relative line", relativeDatePattern, func(rec *Record, f map[string]string) {
	rec.RelativeDate = f["reldate"]
})

// Expect is what the caller knows about the line it asked git for. Zero
// fields are unknown.
type Expect struct {
	// Line is the line number git should answer for.
	Line int
	// File is the queried file name. A reading whose SourceFile ends with
	// it is preferred.
	File string
}

// ParseLine parses a line of `git blame --show-name` output with absolute
// dates, e.g.
//
//	4a3eb02f plugin/diagnostics.py (Tom van Ommeren  2019-11-27 21:42:13 +0100   1) import html
func ParseLine(raw string) (Record, error) {
	return absoluteGrammar.parse(raw, Expect{})
}

// ParseLineRelative parses blame output produced with --date=relative, where
// the date, time and offset are replaced by text such as "3 days ago".
func ParseLineRelative(raw string) (Record, error) {
	return relativeGrammar.parse(raw, Expect{})
}

// ParseLineExpect parses like ParseLine or ParseLineRelative, using want to
// settle where the file name ends when more than one reading parses.
func ParseLineExpect(raw string, relative bool, want Expect) (Record, error) {
	if relative {
		return relativeGrammar.parse(raw, want)
	}
	return absoluteGrammar.parse(raw, want)
}

func (g grammar) parse(raw string, want Expect) (Record, error) {
	var readings []Record
	var firstErr error
	for _, re := range []*regexp.Regexp{g.lazy, g.greedy} {
		fields, ok := match(re, raw)
		if !ok {
			continue
		}
		rec, err := newRecord(fields)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		g.finish(&rec, fields)
		readings = append(readings, rec)
	}
	if len(readings) == 0 {
		if firstErr != nil {
			return Record{}, firstErr
		}
		return Record{}, parseErr(g.op, quoteForError(raw))
	}
	return pick(readings, want), nil
}

// pick returns the reading that best fits want. Ties go to the earlier
// (lazy) reading.
func pick(readings []Record, want Expect) Record {
	best, bestScore := 0, -1
	for i, rec := range readings {
		score := 0
		if want.Line > 0 && rec.LineNumber == want.Line {
			score += 4
		}
		if want.File != "" && sameFile(rec.SourceFile, want.File) {
			score += 2
		}
		if !strings.ContainsAny(rec.Author, "()") {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return readings[best]
}

// sameFile reports whether the repository-relative source names file.
func sameFile(source, file string) bool {
	return source == file || strings.HasSuffix(source, "/"+file)
}

func match(re *regexp.Regexp, raw string) (map[string]string, bool) {
	m := re.FindStringSubmatch(strings.TrimRight(raw, "\r\n"))
	if m == nil {
		return nil, false
	}
	fields := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			fields[name] = m[i]
		}
	}
	return fields, true
}

func newRecord(fields map[string]string) (Record, error) {
	n, err := strconv.Atoi(fields["line"])
	if err != nil || n < 1 {
		return Record{}, parseErr("parse line", "invalid line number "+strconv.Quote(fields["line"]))
	}
	return Record{
		Revision:           fields["rev"],
		RevisionNormalized: NormalizeRevision(fields["rev"]),
		SourceFile:         fields["file"],
		Author:             fields["author"],
		LineNumber:         n,
		Content:            fields["content"],
	}, nil
}

func quoteForError(raw string) string {
	const limit = 120
	if len(raw) > limit {
		raw = raw[:limit] + "..."
	}
	return "unrecognised output " + strconv.Quote(raw)
}
