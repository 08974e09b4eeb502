package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/unmark"
	"github.com/hazyhaar/unmark/event"
	"github.com/hazyhaar/unmark/rewrite"
)

var testMCPImpl = &mcp.Implementation{Name: "unmark-test", Version: "0.1.0"}

func mcpSession(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_RewriteURL(t *testing.T) {
	s, _, _ := newTestServer(t)
	session := mcpSession(t, s)

	text := mcpCallTool(t, session, "unmark_rewrite_url", map[string]any{
		"src":   "https://pica.zhimg.com/" + tokA + "_r.jpg",
		"token": tokB,
	})
	var resp rewriteURLResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != rewrite.Rewritten || resp.NewToken != tokB {
		t.Errorf("response: got %+v", resp)
	}
}

func TestMCP_RewriteHTML(t *testing.T) {
	s, _, _ := newTestServer(t)
	session := mcpSession(t, s)

	text := mcpCallTool(t, session, "unmark_rewrite_html", map[string]any{
		"html": `<body><img src="https://pic1.zhimg.com/` + tokA + `.jpg" data-original-token="` + tokB + `"></body>`,
	})
	var resp rewriteHTMLResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Rewritten != 1 || resp.Format != "html" {
		t.Errorf("response: got %+v", resp)
	}
}

func TestMCP_Recent(t *testing.T) {
	s, st, _ := newTestServer(t)
	if err := st.Send(context.Background(), event.Rewrite{ID: "r1", OldSrc: "a", NewSrc: "b", OldToken: tokA, NewToken: tokB, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, s)

	text := mcpCallTool(t, session, "unmark_recent", map[string]any{"limit": 5})
	var resp struct {
		Rewrites []event.Rewrite `json:"rewrites"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Rewrites) != 1 || resp.Rewrites[0].ID != "r1" {
		t.Errorf("rewrites: got %+v", resp.Rewrites)
	}
}

func TestMCP_Pages(t *testing.T) {
	s, _, pages := newTestServer(t)
	pages.watched["q1"] = unmark.PageConfig{ID: "q1", URL: "https://www.zhihu.com/question/1"}
	session := mcpSession(t, s)

	text := mcpCallTool(t, session, "unmark_pages", map[string]any{})
	var resp struct {
		Pages []unmark.PageStats `json:"pages"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Pages) != 1 || resp.Pages[0].PageID != "q1" {
		t.Errorf("pages: got %+v", resp.Pages)
	}
}
