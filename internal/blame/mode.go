package blame

import (
	"fmt"
	"strings"
)

// Mode keys for commit skipping (rename, move and copy detection depth).
const (
	ModeNone                   = "none"
	ModeSameFileSameCommit     = "same_file_same_commit"
	ModeCrossFileSameCommit    = "cross_file_same_commit"
	ModeCrossAnyFile           = "cross_any_file"
	ModeCrossAnyHistoricalFile = "cross_any_historical_file"
)

// ModeMetadata describes one commit-skipping mode and the flags it adds to
// git blame.
type ModeMetadata struct {
	Key         string   `json:"key" yaml:"key"`
	Explanation string   `json:"explanation" yaml:"explanation"`
	ExtraFlags  []string `json:"extra_flags" yaml:"extra_flags"`
}

// Each row's flags extend the previous row's by exactly one flag. git treats
// -C as a superset of -M, so keeping -M in front changes nothing for git while
// making every deeper mode a strict extension of the shallower one.
var modeTable = []ModeMetadata{
	{ModeNone, "<NONE>", nil},
	{ModeSameFileSameCommit, "...moved/copied the line within a file", []string{"-M"}},
	{ModeCrossFileSameCommit, "...moved/copied the line from another file modified in the same commit", []string{"-M", "-C"}},
	{ModeCrossAnyFile, "...created the file with a copy of a line from any other file", []string{"-M", "-C", "-C"}},
	{ModeCrossAnyHistoricalFile, "...created the file with a copy of a line from any other historical file", []string{"-M", "-C", "-C", "-C"}},
}

// Modes returns the mode table in order of increasing detection scope.
func Modes() []ModeMetadata {
	out := make([]ModeMetadata, len(modeTable))
	for i, m := range modeTable {
		out[i] = m.clone()
	}
	return out
}

// LookupMode resolves a mode key. The empty string and "false" (how the
// setting used to be stored) both mean ModeNone.
func LookupMode(key string) (ModeMetadata, error) {
	if key == "" || key == "false" {
		key = ModeNone
	}
	for _, m := range modeTable {
		if m.Key == key {
			return m.clone(), nil
		}
	}
	return ModeMetadata{}, argErr("lookup mode", "unknown commit skipping mode %q (valid: %s)", key, modeKeys())
}

// DefaultMode returns the mode that adds no flags.
func DefaultMode() ModeMetadata {
	return modeTable[0].clone()
}

func (m ModeMetadata) clone() ModeMetadata {
	if m.ExtraFlags != nil {
		m.ExtraFlags = append([]string(nil), m.ExtraFlags...)
	}
	return m
}

// String renders the mode the way the mode picker lists it.
func (m ModeMetadata) String() string {
	if len(m.ExtraFlags) == 0 {
		return m.Explanation
	}
	return fmt.Sprintf("%s (git blame %s)", m.Explanation, strings.Join(m.ExtraFlags, " "))
}

func modeKeys() string {
	keys := make([]string, len(modeTable))
	for i, m := range modeTable {
		keys[i] = m.Key
	}
	return strings.Join(keys, ", ")
}
