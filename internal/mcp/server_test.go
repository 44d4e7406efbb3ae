package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kokistudios/blame/internal/blame"
	"github.com/kokistudios/blame/internal/store"
)

const showOutput = `commit ad61094e3c0cb8b4ff0c9e6f0b1d3a2b7b8c9d0e
Author: Duncan Holm <duncan@example.com>
Date:   Mon Jan 18 21:22:16 2016 +0000

    Fix the thing

diff --git a/main.go b/main.go
+package main
`

// scriptedGit answers blame, show and rev-parse from canned output.
type scriptedGit struct {
	blame string
	calls [][]string
}

func (g *scriptedGit) Execute(ctx context.Context, dir string, args []string) (string, error) {
	g.calls = append(g.calls, args)
	switch args[0] {
	case "rev-parse":
		return "1111111111111111111111111111111111111111\n", nil
	case "show":
		for _, a := range args {
			if strings.HasPrefix(a, "--pretty=format:%s") {
				return "Fix the thing", nil
			}
		}
		return showOutput, nil
	}
	return g.blame, nil
}

func (g *scriptedGit) count(sub string) int {
	n := 0
	for _, c := range g.calls {
		if c[0] == sub {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T, git *scriptedGit, cacheEnabled bool) (*Server, string) {
	t.Helper()
	home := filepath.Join(t.TempDir(), ".blame")
	if err := store.Init(home, false); err != nil {
		t.Fatal(err)
	}
	st, err := store.Load(home)
	if err != nil {
		t.Fatal(err)
	}
	st.Config.Cache.Enabled = cacheEnabled

	s, err := newServer(st, git, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(file, []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return s, file
}

func TestHandleLine(t *testing.T) {
	git := &scriptedGit{blame: "^ad61094 main.go (Duncan Holm 2016-01-18 21:22:16 +0000 1) package main\n"}
	s, file := newTestServer(t, git, false)

	_, out, err := s.handleLine(context.Background(), nil, LineArgs{Path: file, Line: 1, WithSubject: true})
	if err != nil {
		t.Fatalf("handleLine: %v", err)
	}
	res := out.(LineResult)
	if res.Record.RevisionNormalized != "ad61094" {
		t.Errorf("unexpected revision %q", res.Record.RevisionNormalized)
	}
	if res.Subject != "Fix the thing" {
		t.Errorf("unexpected subject %q", res.Subject)
	}
	if res.Mode != blame.ModeNone || res.ModeSource != store.SourceConfig {
		t.Errorf("unexpected mode %s from %s", res.Mode, res.ModeSource)
	}

	// Skipping the revision git keeps answering with reports the end of history.
	_, out, err = s.handleLine(context.Background(), nil, LineArgs{Path: file, Line: 1, Skip: []string{"ad61094"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.(LineResult).Message, "No earlier commits") {
		t.Errorf("expected terminal message, got %q", out.(LineResult).Message)
	}
}

func TestHandleLine_Errors(t *testing.T) {
	git := &scriptedGit{blame: "garbage\n"}
	s, file := newTestServer(t, git, false)

	if _, _, err := s.handleLine(context.Background(), nil, LineArgs{Path: file, Line: 1}); !blame.IsKind(err, blame.ParseFailure) {
		t.Errorf("expected parse failure, got %v", err)
	}
	if _, _, err := s.handleLine(context.Background(), nil, LineArgs{Path: file, Line: 1, Mode: "sideways"}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, _, err := s.handleLine(context.Background(), nil, LineArgs{Path: file, Line: 0}); !blame.IsKind(err, blame.InvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestHandleFile(t *testing.T) {
	git := &scriptedGit{blame: strings.Join([]string{
		"^ad61094 main.go (Duncan Holm 2016-01-18 21:22:16 +0000 1) package main",
		"c937eff9 main.go (Ana 2020-04-11 14:29:47 +0100 2) ",
		"c937eff9 main.go (Ana 2020-04-11 14:29:47 +0100 3) func main() {}",
	}, "\n")}
	s, file := newTestServer(t, git, true)

	for i := 0; i < 2; i++ {
		_, out, err := s.handleFile(context.Background(), nil, FileArgs{Path: file})
		if err != nil {
			t.Fatalf("handleFile: %v", err)
		}
		res := out.(FileResult)
		if res.Count != 3 || len(res.Authors) != 2 {
			t.Errorf("unexpected result %+v", res)
		}
	}
	if n := git.count("blame"); n != 1 {
		t.Errorf("expected the second call to hit the cache, git blame ran %d times", n)
	}

	_, _, err := s.handleFile(context.Background(), nil, FileArgs{Path: file, Start: 2, End: 3})
	if err != nil {
		t.Fatal(err)
	}
	last := git.calls[len(git.calls)-1]
	if !containsArg(last, "2,3") {
		t.Errorf("expected a line range, got %v", last)
	}
}

func TestHandleWalk(t *testing.T) {
	git := &scriptedGit{blame: "c937eff9 main.go (Ana 2020-04-11 14:29:47 +0100 3) func main() {}\n"}
	s, file := newTestServer(t, git, false)

	_, out, err := s.handleWalk(context.Background(), nil, WalkArgs{Path: file, Line: 3})
	if err != nil {
		t.Fatalf("handleWalk: %v", err)
	}
	res := out.(WalkResult)
	if len(res.Steps) != 1 || res.Stop != blame.StopTerminal.String() {
		t.Errorf("unexpected walk %+v", res)
	}
}

func TestHandleShowCommit(t *testing.T) {
	s, file := newTestServer(t, &scriptedGit{}, false)

	_, out, err := s.handleShowCommit(context.Background(), nil, ShowCommitArgs{Path: file, Rev: "ad61094", Patch: true})
	if err != nil {
		t.Fatalf("handleShowCommit: %v", err)
	}
	res := out.(ShowCommitResult)
	if res.Subject != "Fix the thing" || res.AuthorEmail != "duncan@example.com" {
		t.Errorf("unexpected commit %+v", res)
	}
	if !strings.HasPrefix(res.Patch, "diff --git") {
		t.Errorf("expected patch, got %q", res.Patch)
	}

	if _, _, err := s.handleShowCommit(context.Background(), nil, ShowCommitArgs{Path: file, Rev: "^ad61094"}); !blame.IsKind(err, blame.InvalidArgument) {
		t.Errorf("expected invalid argument for boundary revision, got %v", err)
	}
}

func TestHandleModes(t *testing.T) {
	s, _ := newTestServer(t, &scriptedGit{}, false)
	if err := s.store.SetPermanentMode(blame.ModeCrossAnyFile); err != nil {
		t.Fatal(err)
	}
	_, out, err := s.handleModes(context.Background(), nil, ModesArgs{})
	if err != nil {
		t.Fatal(err)
	}
	res := out.(ModesResult)
	if len(res.Modes) != 5 || res.Default != blame.ModeCrossAnyFile {
		t.Errorf("unexpected modes %+v", res)
	}
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
