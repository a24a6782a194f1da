// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes NoteHub tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notehub/internal/apperr"
	"github.com/starford/notehub/internal/models"
	"github.com/starford/notehub/internal/noteflow"
	"github.com/starford/notehub/internal/parser"
	"github.com/starford/notehub/internal/querycache"
)

// Resource URIs.
const (
	URINoteFormat = "notehub://note-format"
	URITags       = "notehub://tags"
)

// Server wraps the MCP server with NoteHub tools.
type Server struct {
	mcp     *server.MCPServer
	cache   *querycache.Cache
	creator *noteflow.Creator
	deleter *noteflow.Deleter
}

// New creates a new MCP server with all NoteHub tools registered.
func New(cache *querycache.Cache, creator *noteflow.Creator, deleter *noteflow.Deleter) *Server {
	s := &Server{cache: cache, creator: creator, deleter: deleter}

	s.mcp = server.NewMCPServer(
		"NoteHub",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List one page of notes, newest first, optionally filtered by search term and tag."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1 (default 1)")),
		mcp.WithNumber("perPage", mcp.Description("Notes per page (default 10)")),
		mcp.WithString("search", mcp.Description("Text to match in titles and content")),
		mcp.WithString("tag", mcp.Description("Only notes with this tag"), mcp.Enum(tagNames()...)),
		mcp.WithString("sortBy", mcp.Description("Sort field"), mcp.Enum(string(models.SortCreated), string(models.SortUpdated))),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. Pass title, content and tag, or a single Markdown "+
			"document in markdown. Read the contract first via the get_note_contract tool or "+
			"the "+URINoteFormat+" resource."),
		mcp.WithString("title", mcp.Description("Note title, 3 to 50 characters")),
		mcp.WithString("content", mcp.Description("Note body, at most 500 characters")),
		mcp.WithString("tag", mcp.Description("Note tag"), mcp.Enum(tagNames()...)),
		mcp.WithString("markdown", mcp.Description("Draft document with title/tag frontmatter; overrides the other arguments")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note by id. There is no confirmation step."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the note to delete")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the tags a note may carry."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the NoteHub note contract: field rules and the draft document format. "+
			"Call this before creating notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(URINoteFormat, "Note Contract",
			mcp.WithResourceDescription("Field rules and draft document format for NoteHub notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(URITags, "Tags",
			mcp.WithResourceDescription("The closed set of note tags."),
			mcp.WithMIMEType("application/json"),
		),
		s.readTagsResource,
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

func tagNames() []string {
	out := make([]string, len(models.Tags))
	for i, t := range models.Tags {
		out[i] = string(t)
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// errorResult renders err for the model, with one line per invalid field.
func errorResult(err error) *mcp.CallToolResult {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		return mcp.NewToolResultError(ve.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := models.QueryParams{
		Page:    req.GetInt("page", models.DefaultPage),
		PerPage: req.GetInt("perPage", models.DefaultPerPage),
	}
	if v, err := req.RequireString("search"); err == nil {
		params.Search = v
	}
	if v, err := req.RequireString("tag"); err == nil && v != "" {
		tag, err := models.ParseTag(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params.Tag = tag
	}
	if v, err := req.RequireString("sortBy"); err == nil {
		sortBy, err := models.ParseSortBy(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		params.SortBy = sortBy
	}

	res, err := s.cache.Fetch(ctx, params)
	if err != nil {
		return errorResult(err), nil
	}
	if res.Notes == nil {
		res.Notes = []models.Note{}
	}
	return jsonResult(res), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var draft models.FormDraft
	if doc, err := req.RequireString("markdown"); err == nil && strings.TrimSpace(doc) != "" {
		draft, err = parser.ParseDraft([]byte(doc))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	} else {
		draft.Title, _ = req.RequireString("title")
		draft.Content, _ = req.RequireString("content")
		tag, _ := req.RequireString("tag")
		draft.Tag = models.Tag(tag)
	}

	note, err := s.creator.Create(ctx, draft)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.deleter.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return errorResult(err), nil
	}
	if note.Title == "" {
		return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s (%s)", id, note.Title)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(tagNames(), "\n")), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DraftFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      URINoteFormat,
			MIMEType: "text/markdown",
			Text:     DraftFormatContract,
		},
	}, nil
}

func (s *Server) readTagsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(tagNames())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      URITags,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
