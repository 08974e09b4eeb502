package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoReq struct {
	Text string `json:"text"`
}

func session(t *testing.T) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)

	RegisterMCPTool(srv, &mcp.Tool{
		Name:        "echo",
		InputSchema: InputSchema(map[string]any{"text": map[string]any{"type": "string"}}, []string{"text"}),
	}, func(_ context.Context, req any) (any, error) {
		r := req.(*echoReq)
		if r.Text == "fail" {
			return nil, errors.New("refused")
		}
		return map[string]string{"text": r.Text}, nil
	}, DecodeJSON[echoReq]())

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	cs, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestRegisterMCPTool(t *testing.T) {
	cs := session(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	if tc := res.Content[0].(*mcp.TextContent); tc.Text != `{"text":"hi"}` {
		t.Errorf("content: got %s", tc.Text)
	}
}

func TestRegisterMCPTool_EndpointError(t *testing.T) {
	cs := session(t)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "echo",
		Arguments: map[string]any{"text": "fail"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("IsError: got false, want true")
	}
}
