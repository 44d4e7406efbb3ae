package blame

import "strings"

// BoundaryMarker prefixes revisions that git cannot trace any further back.
const BoundaryMarker = "^"

// UncommittedRevision is the id git reports for lines that only exist in the
// working tree. Blame output shortens it, so use IsUncommitted to test for it.
const UncommittedRevision = "0000000000000000000000000000000000000000"

// Record is one attributed line of blame output. Records are built fresh for
// every query and never mutated afterwards.
type Record struct {
	Revision           string `json:"revision" yaml:"revision"`
	RevisionNormalized string `json:"revision_normalized" yaml:"revision_normalized"`
	SourceFile         string `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Author             string `json:"author" yaml:"author"`

	// Set by ParseLine only.
	Date           string `json:"date,omitempty" yaml:"date,omitempty"`
	Time           string `json:"time,omitempty" yaml:"time,omitempty"`
	TimezoneOffset string `json:"timezone_offset,omitempty" yaml:"timezone_offset,omitempty"`

	// Set by ParseLineRelative only.
	RelativeDate string `json:"relative_date,omitempty" yaml:"relative_date,omitempty"`

	LineNumber int    `json:"line_number" yaml:"line_number"`
	Content    string `json:"content,omitempty" yaml:"content,omitempty"`
}

// NormalizeRevision strips one leading boundary marker. It is idempotent for
// every id git produces.
func NormalizeRevision(rev string) string {
	return strings.TrimPrefix(rev, BoundaryMarker)
}

// IsBoundary reports whether rev still carries the boundary marker.
func IsBoundary(rev string) bool {
	return strings.HasPrefix(rev, BoundaryMarker)
}

// IsUncommitted reports whether rev is the all-zero working tree id, in any
// abbreviation.
func IsUncommitted(rev string) bool {
	rev = NormalizeRevision(rev)
	return rev != "" && strings.Trim(rev, "0") == ""
}

// Boundary reports whether the record's revision is a boundary commit.
func (r Record) Boundary() bool { return IsBoundary(r.Revision) }

// Uncommitted reports whether the line has not been committed yet.
func (r Record) Uncommitted() bool { return IsUncommitted(r.Revision) }

// Relative reports whether the record came from relative-date output.
func (r Record) Relative() bool { return r.RelativeDate != "" }

// When returns the record's date for display, whichever variant produced it.
func (r Record) When() string {
	if r.Relative() {
		return r.RelativeDate
	}
	return r.Date + " " + r.Time
}

// ShortRevision returns the normalized revision cut to n characters.
func (r Record) ShortRevision(n int) string {
	if len(r.RevisionNormalized) <= n {
		return r.RevisionNormalized
	}
	return r.RevisionNormalized[:n]
}
