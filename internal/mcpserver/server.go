// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dex-contacts tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/noteservice"
)

const formatURI = "dex://annotation-format"

// Server wraps the MCP server with dex-contacts tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"dex-contacts",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("Search the cached Dex contact list by name or company."),
		mcp.WithString("query", mcp.Description("Optional filter; empty lists everything")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.listContacts)

	s.mcp.AddTool(mcp.NewTool("note_status",
		mcp.WithDescription("List the contact mentions of a note with their sync status "+
			"(not-synced, synced or needs-resync)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. daily/2026-01-01.md)")),
	), s.noteStatus)

	s.mcp.AddTool(mcp.NewTool("block_status",
		mcp.WithDescription("Show the content block starting at a line and its sync status."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based start line of the block")),
	), s.blockStatus)

	s.mcp.AddTool(mcp.NewTool("vault_status",
		mcp.WithDescription("Summarise mention sync status across the vault."),
		mcp.WithString("status", mcp.Description("Optional status filter")),
		mcp.WithString("contact_id", mcp.Description("Optional contact filter")),
	), s.vaultStatus)

	s.mcp.AddTool(mcp.NewTool("sync_block",
		mcp.WithDescription("Create or update the Dex memo for the block starting at a line. "+
			"Read the annotation format first via get_annotation_format or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based start line of the block")),
		mcp.WithString("contact_id", mcp.Description("Contact to sync to; defaults to the mention on the line")),
	), s.syncBlock)

	s.mcp.AddTool(mcp.NewTool("sync_note",
		mcp.WithDescription("Sync every mention of a note that is not already synced."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.syncNote)

	s.mcp.AddTool(mcp.NewTool("strip_annotations",
		mcp.WithDescription("Remove every sync annotation from a note. Memos in Dex are left alone."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithBoolean("dry_run", mcp.Description("Return a patch instead of writing")),
	), s.stripAnnotations)

	s.mcp.AddTool(mcp.NewTool("resolve_mention",
		mcp.WithDescription("Replace an @name mention on a line with a link to a Dex contact."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based line number")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text following the @")),
		mcp.WithString("contact_id", mcp.Required(), mcp.Description("Contact to link")),
	), s.resolveMention)

	s.mcp.AddTool(mcp.NewTool("get_annotation_format",
		mcp.WithDescription("Returns the sync annotation format and the block rules."),
	), s.getAnnotationFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Sync Annotation Format",
			mcp.WithResourceDescription("How notes record which Dex memo a block was synced to."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.Contacts(ctx, req.GetString("query", ""), req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list), nil
}

func (s *Server) noteStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mentions, err := s.svc.NoteStatus(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(mentions), nil
}

type blockStatus struct {
	Start    int                    `json:"start"`
	End      int                    `json:"end"`
	Text     string                 `json:"text"`
	Hash     string                 `json:"hash"`
	Mentions []models.MentionStatus `json:"mentions"`
}

func (s *Server) blockStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.svc.BlockAt(ctx, path, line)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mentions, err := s.svc.NoteStatus(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := blockStatus{Start: b.Start, End: b.End, Text: b.Text(), Hash: b.Hash(), Mentions: []models.MentionStatus{}}
	for _, m := range mentions {
		if m.StartLine == line {
			out.Mentions = append(out.Mentions, m)
		}
	}
	return jsonResult(out), nil
}

func (s *Server) vaultStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vs, err := s.svc.VaultStatus(ctx, index.MentionFilter{
		Status:    req.GetString("status", ""),
		ContactID: req.GetString("contact_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(vs), nil
}

func (s *Server) syncBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SyncBlock(ctx, path, line, req.GetString("contact_id", ""), true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) syncNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SyncNote(ctx, path, true)
	if err != nil && len(results) == 0 {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := map[string]any{"results": results}
	if err != nil {
		out["errors"] = strings.Split(err.Error(), "\n")
	}
	return jsonResult(out), nil
}

func (s *Server) stripAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("dry_run", false) {
		before, after, err := s.svc.PreviewStrip(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch := noteservice.Diff(before, after)
		if patch == "" {
			return mcp.NewToolResultText("no annotations"), nil
		}
		return mcp.NewToolResultText(patch), nil
	}
	res, err := s.svc.StripAnnotations(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stripped %d annotation(s) from %s", res.Removed, res.Path)), nil
}

func (s *Server) resolveMention(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contactID, err := req.RequireString("contact_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.ResolveMention(ctx, path, line, query, contactID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) getAnnotationFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationFormat), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     AnnotationFormat,
		},
	}, nil
}
