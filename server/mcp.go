package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/unmark/kit"
)

// RegisterMCP registers the unmark tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerRewriteURLTool(srv)
	s.registerRewriteHTMLTool(srv)
	s.registerRecentTool(srv)
	if s.cfg.Pages != nil {
		s.registerPagesTool(srv)
	}
}

func (s *Server) registerRewriteURLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "unmark_rewrite_url",
		Description: "Swap the watermarked v2 token in a zhimg.com image URL for a clean one. Returns the status and rewritten URL.",
		InputSchema: kit.InputSchema(map[string]any{
			"src":       map[string]any{"type": "string", "description": "Image URL as served"},
			"token":     map[string]any{"type": "string", "description": "Clean token (data-original-token)"},
			"secondary": map[string]any{"type": "string", "description": "Optional data-original URL"},
		}, []string{"src", "token"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		return s.rewriteURL(req.(*rewriteURLReq))
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[rewriteURLReq]())
}

func (s *Server) registerRewriteHTMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "unmark_rewrite_html",
		Description: "Rewrite every qualifying Zhihu image in an HTML document. Output as html or markdown.",
		InputSchema: kit.InputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "HTML document"},
			"format":   map[string]any{"type": "string", "enum": []string{"html", "markdown"}},
			"sanitize": map[string]any{"type": "boolean", "description": "Strip scripts and unsafe markup first"},
			"base_url": map[string]any{"type": "string", "description": "Base for relative links in markdown"},
		}, []string{"html"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		return s.rewriteHTML(req.(*rewriteHTMLReq))
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[rewriteHTMLReq]())
}

type recentReq struct {
	Limit int `json:"limit"`
}

func (s *Server) registerRecentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "unmark_recent",
		Description: "List the most recent rewrites recorded in the ledger, newest first.",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		list, err := s.recent(ctx, req.(*recentReq).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rewrites": list}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[recentReq]())
}

func (s *Server) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "unmark_pages",
		Description: "List watched pages with their activation and rewrite counters.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"pages": s.cfg.Pages.Stats()}, nil
	}
	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
