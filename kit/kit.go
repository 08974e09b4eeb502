// Package kit adapts plain Go endpoints to MCP tools.
package kit

import "context"

// Endpoint is a transport-agnostic handler: a decoded request in, a JSON
// serialisable response out.
type Endpoint func(ctx context.Context, req any) (any, error)
