package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/blame/internal/blame"
)

type countingSource struct {
	head      string
	headErr   error
	lineCalls int
	fileCalls int
	err       error
}

func (s *countingSource) ResolveLine(ctx context.Context, path string, line int, skip blame.SkipList, mode blame.ModeMetadata) (blame.Record, error) {
	s.lineCalls++
	if s.err != nil {
		return blame.Record{}, s.err
	}
	return blame.Record{RevisionNormalized: "abc", LineNumber: line, Author: "Ana"}, nil
}

func (s *countingSource) ResolveFile(ctx context.Context, path string, mode blame.ModeMetadata) ([]blame.Record, error) {
	s.fileCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []blame.Record{{LineNumber: 1, Author: "Ana"}, {LineNumber: 2, Author: "Ben"}}, nil
}

func (s *countingSource) HeadRevision(ctx context.Context, path string) (string, error) {
	return s.head, s.headErr
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newCache(t *testing.T, src Source) *Resolver {
	t.Helper()
	c, err := New(src, Options{Size: 16})
	require.NoError(t, err)
	return c
}

func TestResolveLine_Hit(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "package main\n")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := c.ResolveLine(ctx, path, 1, nil, blame.DefaultMode())
		require.NoError(t, err)
		assert.Equal(t, "Ana", rec.Author)
	}
	assert.Equal(t, 1, src.lineCalls)
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Entries: 1}, c.Stats())
}

func TestResolveLine_KeyDimensions(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "a\nb\n")
	ctx := context.Background()
	mode, err := blame.LookupMode(blame.ModeCrossAnyFile)
	require.NoError(t, err)

	_, _ = c.ResolveLine(ctx, path, 1, nil, blame.DefaultMode())
	_, _ = c.ResolveLine(ctx, path, 2, nil, blame.DefaultMode())
	_, _ = c.ResolveLine(ctx, path, 1, blame.SkipList{"abc"}, blame.DefaultMode())
	_, _ = c.ResolveLine(ctx, path, 1, nil, mode)
	assert.Equal(t, 4, src.lineCalls)
}

func TestResolveLine_InvalidatedByEditAndCommit(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "one\n")
	ctx := context.Background()

	_, _ = c.ResolveLine(ctx, path, 1, nil, blame.DefaultMode())
	require.NoError(t, os.WriteFile(path, []byte("two\n"), 0644))
	_, _ = c.ResolveLine(ctx, path, 1, nil, blame.DefaultMode())
	assert.Equal(t, 2, src.lineCalls, "content change must miss")

	src.head = "h2"
	_, _ = c.ResolveLine(ctx, path, 1, nil, blame.DefaultMode())
	assert.Equal(t, 3, src.lineCalls, "new HEAD must miss")
}

func TestResolveLine_ErrorsNotCached(t *testing.T) {
	src := &countingSource{head: "h1", err: errors.New("git failed")}
	c := newCache(t, src)
	path := writeFile(t, "x\n")

	_, err := c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	require.Error(t, err)
	src.err = nil
	_, err = c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	require.NoError(t, err)
	assert.Equal(t, 2, src.lineCalls)
}

func TestBypassWithoutFingerprint(t *testing.T) {
	src := &countingSource{headErr: errors.New("not a repository")}
	c := newCache(t, src)
	path := writeFile(t, "x\n")

	_, _ = c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	_, _ = c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	assert.Equal(t, 2, src.lineCalls)

	_, _ = c.ResolveFile(context.Background(), filepath.Join(t.TempDir(), "gone.go"), blame.DefaultMode())
	assert.Equal(t, 1, src.fileCalls)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestResolveFile_ReturnsCopies(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "a\nb\n")
	ctx := context.Background()

	first, err := c.ResolveFile(ctx, path, blame.DefaultMode())
	require.NoError(t, err)
	first[0].Author = "mutated"

	second, err := c.ResolveFile(ctx, path, blame.DefaultMode())
	require.NoError(t, err)
	assert.Equal(t, "Ana", second[0].Author)
	assert.Equal(t, 1, src.fileCalls)
}

func TestPurge(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "a\n")

	_, _ = c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)
	_, _ = c.ResolveLine(context.Background(), path, 1, nil, blame.DefaultMode())
	assert.Equal(t, 2, src.lineCalls)
}

func TestWalkThroughCache(t *testing.T) {
	src := &countingSource{head: "h1"}
	c := newCache(t, src)
	path := writeFile(t, "a\n")

	res, err := blame.Walk(context.Background(), c, path, 1, blame.DefaultMode(), 0)
	require.NoError(t, err)
	assert.Equal(t, blame.StopTerminal, res.Stop)
	require.Len(t, res.Steps, 1)
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(&countingSource{}, Options{Size: -1})
	assert.Error(t, err)
}
