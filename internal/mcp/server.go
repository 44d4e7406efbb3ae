package mcp

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/blame/internal/blame"
	"github.com/kokistudios/blame/internal/cache"
	"github.com/kokistudios/blame/internal/store"
)

// Server wraps the MCP server with a blame resolver.
type Server struct {
	store  *store.Store
	core   *blame.Resolver
	lines  blame.LineResolver
	cache  *cache.Resolver // nil when caching is disabled
	logger *log.Logger
	server *mcp.Server
}

// NewServer creates a blame MCP server that runs the configured git binary.
func NewServer(st *store.Store, version string, logger *log.Logger) (*Server, error) {
	return newServer(st, blame.NewGitExecutor(st.Config.Git.Path), version, logger)
}

func newServer(st *store.Store, exec blame.Executor, version string, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	opts := st.ResolverOptions()
	opts.Logger = logger
	core := blame.NewResolver(exec, opts)

	s := &Server{store: st, core: core, lines: core, logger: logger}
	if st.Config.Cache.Enabled {
		c, err := cache.New(core, cache.Options{Size: st.Config.Cache.Size, Logger: logger})
		if err != nil {
			return nil, err
		}
		s.cache = c
		s.lines = c
	}

	impl := &mcp.Implementation{
		Name:    "blame",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s, nil
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds all blame tools to the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "blame_line",
		Description: "Find the commit, author and date that last changed one line of a file. " +
			"Pass skip with revisions already seen to look further back, or use blame_walk to do that automatically. " +
			"mode controls whether moved or copied lines are followed (see blame_modes).",
	}, s.handleLine)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "blame_file",
		Description: "Attribute every line of a file, or the lines start..end, to the commits that last changed them. " +
			"Lines git could not attribute are left out.",
	}, s.handleFile)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "blame_walk",
		Description: "Chase one line back through history: every commit that changed it, newest first. " +
			"Stops when no earlier commit touched the line, on uncommitted changes, or after limit steps.",
	}, s.handleWalk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "blame_show_commit",
		Description: "Show a commit found by blame: subject, message, author and date, optionally with its patch. " +
			"rev must be a plain revision without the boundary marker '^'.",
	}, s.handleShowCommit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "blame_modes",
		Description: "List the commit skipping modes, the git flags each one adds, and the configured default.",
	}, s.handleModes)
}

// LineArgs defines the input for blame_line.
type LineArgs struct {
	Path        string   `json:"path" jsonschema:"Path of the file to blame"`
	Line        int      `json:"line" jsonschema:"1-based line number"`
	Skip        []string `json:"skip,omitempty" jsonschema:"Revisions to ignore, oldest first"`
	Mode        string   `json:"mode,omitempty" jsonschema:"Commit skipping mode key (optional - uses the file override or configured default)"`
	WithSubject bool     `json:"with_subject,omitempty" jsonschema:"Also return the commit subject line"`
}

// LineResult is the output of blame_line.
type LineResult struct {
	Record     blame.Record `json:"record"`
	Mode       string       `json:"mode"`
	ModeSource string       `json:"mode_source"`
	Subject    string       `json:"subject,omitempty"`
	Message    string       `json:"message,omitempty"`
}

func (s *Server) handleLine(ctx context.Context, req *mcp.CallToolRequest, args LineArgs) (*mcp.CallToolResult, any, error) {
	mode, source, err := s.store.EffectiveMode(args.Path, args.Mode)
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.lines.ResolveLine(ctx, args.Path, args.Line, blame.SkipList(args.Skip), mode)
	if err != nil {
		return nil, nil, describe(err)
	}

	out := LineResult{Record: rec, Mode: mode.Key, ModeSource: source}
	switch {
	case rec.Uncommitted():
		out.Message = "This line has uncommitted changes."
	case args.WithSubject:
		subject, err := s.core.CommitSubject(ctx, args.Path, rec.RevisionNormalized)
		if err != nil {
			return nil, nil, describe(err)
		}
		out.Subject = subject
	}
	if next, ok := blame.Advance(rec.RevisionNormalized, args.Skip); !ok {
		out.Message = fmt.Sprintf("No earlier commits affected line %d.", args.Line)
	} else if len(next) == len(args.Skip) {
		out.Message = "git returned a revision that is already skipped; nothing earlier can be found."
	}
	return nil, out, nil
}

// FileArgs defines the input for blame_file.
type FileArgs struct {
	Path  string `json:"path" jsonschema:"Path of the file to blame"`
	Start int    `json:"start,omitempty" jsonschema:"First line of a range (optional - whole file if omitted)"`
	End   int    `json:"end,omitempty" jsonschema:"Last line of the range (defaults to start)"`
	Mode  string `json:"mode,omitempty" jsonschema:"Commit skipping mode key (optional)"`
}

// FileResult is the output of blame_file.
type FileResult struct {
	Records []blame.Record `json:"records"`
	Count   int            `json:"count"`
	Authors []string       `json:"authors"`
	Mode    string         `json:"mode"`
}

func (s *Server) handleFile(ctx context.Context, req *mcp.CallToolRequest, args FileArgs) (*mcp.CallToolResult, any, error) {
	mode, _, err := s.store.EffectiveMode(args.Path, args.Mode)
	if err != nil {
		return nil, nil, err
	}

	var recs []blame.Record
	if args.Start > 0 || args.End > 0 {
		end := args.End
		if end == 0 {
			end = args.Start
		}
		recs, err = s.core.ResolveRange(ctx, args.Path, args.Start, end, nil, mode)
	} else {
		recs, err = s.lines.ResolveFile(ctx, args.Path, mode)
	}
	if err != nil {
		return nil, nil, describe(err)
	}

	out := FileResult{Records: recs, Count: len(recs), Authors: []string{}, Mode: mode.Key}
	if out.Records == nil {
		out.Records = []blame.Record{}
	}
	seen := make(map[string]bool)
	for _, r := range recs {
		if !seen[r.Author] {
			seen[r.Author] = true
			out.Authors = append(out.Authors, r.Author)
		}
	}
	return nil, out, nil
}

// WalkArgs defines the input for blame_walk.
type WalkArgs struct {
	Path  string `json:"path" jsonschema:"Path of the file"`
	Line  int    `json:"line" jsonschema:"1-based line number"`
	Mode  string `json:"mode,omitempty" jsonschema:"Commit skipping mode key (optional)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of commits to return (optional - configured walk_limit)"`
}

// WalkResult is the output of blame_walk.
type WalkResult struct {
	Steps []blame.Step `json:"steps"`
	Stop  string       `json:"stop"`
	Mode  string       `json:"mode"`
}

func (s *Server) handleWalk(ctx context.Context, req *mcp.CallToolRequest, args WalkArgs) (*mcp.CallToolResult, any, error) {
	mode, _, err := s.store.EffectiveMode(args.Path, args.Mode)
	if err != nil {
		return nil, nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = s.store.Config.Blame.WalkLimit
	}

	res, err := blame.Walk(ctx, s.lines, args.Path, args.Line, mode, limit)
	if err != nil {
		return nil, nil, describe(err)
	}
	out := WalkResult{Steps: res.Steps, Stop: res.Stop.String(), Mode: mode.Key}
	if out.Steps == nil {
		out.Steps = []blame.Step{}
	}
	return nil, out, nil
}

// ShowCommitArgs defines the input for blame_show_commit.
type ShowCommitArgs struct {
	Path  string `json:"path" jsonschema:"A file or directory inside the repository"`
	Rev   string `json:"rev" jsonschema:"Revision to show, as returned in record.revision_normalized"`
	Patch bool   `json:"patch,omitempty" jsonschema:"Include the diff (can be large)"`
}

// ShowCommitResult is the output of blame_show_commit.
type ShowCommitResult struct {
	Hash        string   `json:"hash"`
	Parents     []string `json:"parents,omitempty"`
	AuthorName  string   `json:"author_name"`
	AuthorEmail string   `json:"author_email"`
	Date        string   `json:"date"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body,omitempty"`
	Patch       string   `json:"patch,omitempty"`
}

func (s *Server) handleShowCommit(ctx context.Context, req *mcp.CallToolRequest, args ShowCommitArgs) (*mcp.CallToolResult, any, error) {
	show, err := s.core.ShowCommit(ctx, args.Path, args.Rev)
	if err != nil {
		return nil, nil, describe(err)
	}
	info, err := blame.ParseCommit(show)
	if err != nil {
		return nil, nil, describe(err)
	}
	out := ShowCommitResult{
		Hash:        info.Hash,
		Parents:     info.Parents,
		AuthorName:  info.AuthorName,
		AuthorEmail: info.AuthorEmail,
		Date:        info.Date,
		Subject:     info.Subject,
		Body:        info.Body,
	}
	if args.Patch {
		out.Patch = blame.PatchOf(show)
	}
	return nil, out, nil
}

// ModesArgs defines the (empty) input for blame_modes.
type ModesArgs struct{}

// ModesResult is the output of blame_modes.
type ModesResult struct {
	Modes   []blame.ModeMetadata `json:"modes"`
	Default string               `json:"default"`
}

func (s *Server) handleModes(ctx context.Context, req *mcp.CallToolRequest, args ModesArgs) (*mcp.CallToolResult, any, error) {
	def, err := blame.LookupMode(s.store.Config.Blame.CommitSkippingMode)
	if err != nil {
		return nil, nil, err
	}
	return nil, ModesResult{Modes: blame.Modes(), Default: def.Key}, nil
}

// describe adds a hint for the agent to the resolver's error.
func describe(err error) error {
	switch blame.KindOf(err) {
	case blame.ParseFailure:
		return fmt.Errorf("%w (git's output could not be read; check git.custom_blame_flags)", err)
	case blame.ToolInvocationFailure:
		if strings.Contains(err.Error(), "not a git repository") {
			return fmt.Errorf("%w (the file is not inside a git repository)", err)
		}
	}
	return err
}
