package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/models"
	"github.com/starford/beamline/internal/pipeline"
	"github.com/starford/beamline/internal/retry"
	"github.com/starford/beamline/internal/service"
	"github.com/starford/beamline/internal/testutil"
)

type testEnv struct {
	srv   *Server
	dir   string
	db    *journal.DB
	queue *pipeline.Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir, store := testutil.TestFolder(t)
	db := testutil.TestJournal(t)
	proc, err := pipeline.NewProcessor(store, retry.NewGuard(retry.DefaultPolicy(), testutil.Logger()), pipeline.Config{}, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	queue := pipeline.NewDispatcher(proc, testutil.Logger())
	return &testEnv{
		srv:   New(service.NewService(db, queue, store), "test"),
		dir:   dir,
		db:    db,
		queue: queue,
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are invoked
	// directly.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "recent_runs":
		result, err = srv.recentRuns(ctx, req)
	case "normalize_identifier":
		result, err = srv.normalizeIdentifier(ctx, req)
	case "process_file":
		result, err = srv.processFile(ctx, req)
	case "list_folders":
		result, err = srv.listFolders(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestRecentRuns(t *testing.T) {
	env := newTestEnv(t)
	for i, id := range []string{"a", "b", "c"} {
		_ = env.db.Record(models.Run{
			ID:        id,
			Path:      filepath.Join(env.dir, id+".nc1"),
			Kind:      models.Created,
			Outcome:   models.OutcomeChanged,
			StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	r := callTool(t, env.srv, "recent_runs", map[string]any{"limit": 2})
	var runs []models.Run
	if err := json.Unmarshal([]byte(resultText(r)), &runs); err != nil {
		t.Fatalf("decode: %v (%q)", err, resultText(r))
	}
	if len(runs) != 2 || runs[0].ID != "c" {
		t.Errorf("runs = %+v", runs)
	}

	r = callTool(t, env.srv, "recent_runs", map[string]any{"path": filepath.Join(env.dir, "a.nc1")})
	runs = nil
	_ = json.Unmarshal([]byte(resultText(r)), &runs)
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("filtered runs = %+v", runs)
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	env := newTestEnv(t)
	r := callTool(t, env.srv, "normalize_identifier", map[string]any{"id": "W8722-B012-A007"})
	text := resultText(r)
	if !strings.Contains(text, `"rich": "W8722-B12-A7"`) || !strings.Contains(text, `"legacy": "W8722B012A7"`) {
		t.Errorf("result = %q", text)
	}

	r = callTool(t, env.srv, "normalize_identifier", map[string]any{})
	if !r.IsError {
		t.Error("expected error without id")
	}
}

func TestProcessFile(t *testing.T) {
	env := newTestEnv(t)
	path := testutil.WriteFile(t, env.dir, "a.idstv", testutil.Metadata)

	r := callTool(t, env.srv, "process_file", map[string]any{"path": path})
	if r.IsError || resultText(r) != "queued: "+path {
		t.Errorf("result = %q", resultText(r))
	}
	if env.queue.Pending() != 1 {
		t.Errorf("pending = %d, want 1", env.queue.Pending())
	}
}

func TestProcessFileRejected(t *testing.T) {
	env := newTestEnv(t)
	txt := testutil.WriteFile(t, env.dir, "notes.txt", "x")
	for _, path := range []string{
		filepath.Join(env.dir, "missing.nc1"),
		filepath.Join(t.TempDir(), "elsewhere.nc1"),
		txt,
	} {
		r := callTool(t, env.srv, "process_file", map[string]any{"path": path})
		if !r.IsError {
			t.Errorf("expected error for %s", path)
		}
	}
	if env.queue.Pending() != 0 {
		t.Errorf("pending = %d, want 0", env.queue.Pending())
	}
}

func TestListFolders(t *testing.T) {
	env := newTestEnv(t)
	r := callTool(t, env.srv, "list_folders", map[string]any{})
	if resultText(r) != env.dir {
		t.Errorf("folders = %q, want %q", resultText(r), env.dir)
	}
}

func TestRulesResource(t *testing.T) {
	env := newTestEnv(t)
	contents, err := env.srv.readRulesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != rulesURI || !strings.Contains(tc.Text, "W8722-B12-A7") {
		t.Errorf("resource = %+v", contents[0])
	}
}

func TestToolsRegistered(t *testing.T) {
	env := newTestEnv(t)
	tools := env.srv.MCPServer().ListTools()
	for _, name := range []string{"recent_runs", "normalize_identifier", "process_file", "list_folders"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}
