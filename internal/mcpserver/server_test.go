package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/GraysonCAdams/dex-contacts/internal/contacts"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
	"github.com/GraysonCAdams/dex-contacts/internal/testutil"
)

const janeLink = "[Jane Doe](https://getdex.com/contacts/c1)"

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	vaultDir, fs := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ms := testutil.NewMemoStore(
		models.Contact{ID: "c1", FirstName: "Jane", LastName: "Doe", Company: "Acme"},
		models.Contact{ID: "c2", FirstName: "John", LastName: "Roe"},
	)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cache := contacts.New(ms, contacts.WithLogger(logger))
	syncer := memo.NewSyncer(ms, memo.WithVault("Vault"), memo.WithLogger(logger))
	links := noteservice.Links{URLBase: "https://getdex.com/contacts", Folder: "People", Style: mention.StyleDirect}
	svc := noteservice.NewService(fs, db, cache, syncer, links, logger)
	return New(svc, "test"), vaultDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_contacts":
		result, err = srv.listContacts(ctx, req)
	case "note_status":
		result, err = srv.noteStatus(ctx, req)
	case "block_status":
		result, err = srv.blockStatus(ctx, req)
	case "vault_status":
		result, err = srv.vaultStatus(ctx, req)
	case "sync_block":
		result, err = srv.syncBlock(ctx, req)
	case "sync_note":
		result, err = srv.syncNote(ctx, req)
	case "strip_annotations":
		result, err = srv.stripAnnotations(ctx, req)
	case "resolve_mention":
		result, err = srv.resolveMention(ctx, req)
	case "get_annotation_format":
		result, err = srv.getAnnotationFormat(ctx, req)
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

func TestListContacts(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_contacts", map[string]any{"query": "jane"})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var got []models.Contact
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("contacts = %+v", got)
	}
}

func TestSyncBlockAndStatus(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "daily.md", "Met "+janeLink+"\n")

	r := callTool(t, srv, "sync_block", map[string]any{"path": "daily.md", "line": float64(0)})
	if r.IsError {
		t.Fatalf("sync error: %s", resultText(r))
	}
	var res memo.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.MemoID != "m1" || res.Action != memo.ActionCreated {
		t.Errorf("result = %+v", res)
	}

	r = callTool(t, srv, "note_status", map[string]any{"path": "daily.md"})
	if !strings.Contains(resultText(r), `"status": "synced"`) {
		t.Errorf("note status = %s", resultText(r))
	}

	r = callTool(t, srv, "vault_status", map[string]any{"status": "synced"})
	var vs noteservice.VaultStatus
	if err := json.Unmarshal([]byte(resultText(r)), &vs); err != nil {
		t.Fatal(err)
	}
	if vs.Counts["synced"] != 1 {
		t.Errorf("counts = %v", vs.Counts)
	}
}

func TestBlockStatus(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "n.md", "intro\n\n- "+janeLink+"\n  - coffee\n- other\n")

	r := callTool(t, srv, "block_status", map[string]any{"path": "n.md", "line": float64(2)})
	if r.IsError {
		t.Fatalf("block status error: %s", resultText(r))
	}
	var got blockStatus
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Start != 2 || got.End != 3 {
		t.Errorf("range = %d..%d, want 2..3", got.Start, got.End)
	}
	if len(got.Mentions) != 1 || got.Mentions[0].Status != "not-synced" {
		t.Errorf("mentions = %+v", got.Mentions)
	}

	r = callTool(t, srv, "block_status", map[string]any{"path": "n.md", "line": float64(40)})
	if !r.IsError {
		t.Error("expected error for out-of-range line")
	}
}

func TestSyncBlock_MissingArgs(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_block", map[string]any{"path": "daily.md"})
	if !r.IsError {
		t.Error("expected error without line")
	}
}

func TestSyncNote(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "n.md", "- "+janeLink+"\n- plain\n")

	r := callTool(t, srv, "sync_note", map[string]any{"path": "n.md"})
	if r.IsError {
		t.Fatalf("sync note error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"memo_id": "m1"`) {
		t.Errorf("sync note = %s", resultText(r))
	}

	r = callTool(t, srv, "sync_note", map[string]any{"path": "missing.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestStripAnnotations(t *testing.T) {
	srv, vault := testServer(t)
	text := janeLink + " %%dex:contact-id=c1,memo-id=m1,hash=x%%\n"
	testutil.WriteNote(t, vault, "n.md", text)

	r := callTool(t, srv, "strip_annotations", map[string]any{"path": "n.md", "dry_run": true})
	if !strings.Contains(resultText(r), "%%dex:") {
		t.Errorf("dry run patch = %q", resultText(r))
	}
	if testutil.ReadNote(t, vault, "n.md") != text {
		t.Fatal("dry run wrote the note")
	}

	r = callTool(t, srv, "strip_annotations", map[string]any{"path": "n.md"})
	if resultText(r) != "stripped 1 annotation(s) from n.md" {
		t.Errorf("strip = %q", resultText(r))
	}
	if got := testutil.ReadNote(t, vault, "n.md"); got != janeLink+"\n" {
		t.Errorf("note = %q", got)
	}
}

func TestResolveMention(t *testing.T) {
	srv, vault := testServer(t)
	testutil.WriteNote(t, vault, "n.md", "ping @jane doe\n")

	r := callTool(t, srv, "resolve_mention", map[string]any{
		"path": "n.md", "line": float64(0), "query": "Jane Doe", "contact_id": "c1",
	})
	if r.IsError {
		t.Fatalf("resolve error: %s", resultText(r))
	}
	if resultText(r) != "ping "+janeLink {
		t.Errorf("line = %q", resultText(r))
	}
}

func TestAnnotationFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_annotation_format", nil)
	if !strings.Contains(resultText(r), "%%dex:contact-id=") {
		t.Error("format text missing annotation example")
	}

	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
}
