package blame

import "context"

// SkipList is the ordered set of normalized revisions excluded from a blame
// query. The last element is the most recently skipped revision.
type SkipList []string

// Contains reports whether rev is already skipped.
func (s SkipList) Contains(rev string) bool {
	for _, r := range s {
		if r == rev {
			return true
		}
	}
	return false
}

// Last returns the most recently skipped revision.
func (s SkipList) Last() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

// Append returns a copy of s with rev added at the end, or an unchanged copy
// when rev is already present.
func (s SkipList) Append(rev string) SkipList {
	out := make(SkipList, len(s), len(s)+1)
	copy(out, s)
	if s.Contains(rev) {
		return out
	}
	return append(out, rev)
}

// Advance computes the skip list for the next step back in a line's history,
// given the revision the current skip list just produced. It returns false
// when that revision is the one skipped last: excluding it again would repeat
// the same query, so no earlier revision touched the line.
func Advance(current string, skip SkipList) (SkipList, bool) {
	current = NormalizeRevision(current)
	if last, ok := skip.Last(); ok && last == current {
		return nil, false
	}
	return skip.Append(current), true
}

// StopReason says why a Walk ended.
type StopReason int

const (
	// StopTerminal means no earlier revision affected the line.
	StopTerminal StopReason = iota + 1
	// StopFixedPoint means git kept returning an already-skipped revision.
	StopFixedPoint
	// StopUncommitted means the line only exists in the working tree, which
	// git cannot ignore.
	StopUncommitted
	// StopLimit means the step limit was reached.
	StopLimit
)

func (r StopReason) String() string {
	switch r {
	case StopTerminal:
		return "no earlier revision"
	case StopFixedPoint:
		return "revision repeated"
	case StopUncommitted:
		return "uncommitted change"
	case StopLimit:
		return "limit reached"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason as its description.
func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// DefaultWalkLimit bounds a Walk when the caller passes no limit.
const DefaultWalkLimit = 50

// Step is one revision found while walking back.
type Step struct {
	Record Record   `json:"record"`
	Skip   SkipList `json:"skip"` // the skip list that produced Record
}

// WalkResult is the history of one line, newest revision first.
type WalkResult struct {
	Steps []Step     `json:"steps"`
	Stop  StopReason `json:"stop"`
}

// Walk chases a line back through history by re-resolving it while skipping
// every revision seen so far. Steps found before an error are returned with it.
func Walk(ctx context.Context, r LineResolver, path string, line int, mode ModeMetadata, limit int) (WalkResult, error) {
	if limit <= 0 {
		limit = DefaultWalkLimit
	}
	var res WalkResult
	var skip SkipList
	for {
		if len(res.Steps) >= limit {
			res.Stop = StopLimit
			return res, nil
		}
		rec, err := r.ResolveLine(ctx, path, line, skip, mode)
		if err != nil {
			return res, err
		}
		next, ok := Advance(rec.RevisionNormalized, skip)
		if !ok {
			res.Stop = StopTerminal
			return res, nil
		}
		if len(next) == len(skip) {
			res.Stop = StopFixedPoint
			return res, nil
		}
		res.Steps = append(res.Steps, Step{Record: rec, Skip: skip})
		if rec.Uncommitted() {
			res.Stop = StopUncommitted
			return res, nil
		}
		skip = next
	}
}
