// Package session manages backend connections: one Session per logical
// connection to a db or file tool server, pooled per backend kind so
// concurrent steps can fan out without serializing on a single pipe.
package session

import "context"

// Session is a live connection to one backend (db or file) tool server.
type Session interface {
	// Initialize performs the transport handshake and returns whatever
	// capability/server info the backend advertises.
	Initialize(ctx context.Context) (map[string]any, error)
	// CallTool invokes a named tool with the given arguments.
	CallTool(ctx context.Context, tool string, args map[string]any) (any, error)
	// ReadResource fetches the resource at uri.
	ReadResource(ctx context.Context, uri string) (any, error)
	// Close releases the underlying connection.
	Close() error
}
