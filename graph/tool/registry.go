package tool

import (
	"context"
	"fmt"
	"strings"
)

// McpClient is the narrow collaborator interface the registry uses to
// reach tools hosted by an MCP server, addressed as "server::toolname"
//. Population of
// the client set (MCP session lifecycle) is a collaborator concern, out
// of scope for this module.
type McpClient interface {
	CallTool(ctx context.Context, toolName string, input map[string]interface{}) (map[string]interface{}, error)
}

// Registry resolves builtin tools by id and MCP tools by "server::tool".
type Registry struct {
	builtins map[string]Tool
	mcp      map[string]McpClient
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{builtins: map[string]Tool{}, mcp: map[string]McpClient{}}
}

// RegisterBuiltin adds a builtin tool, keyed by its Name().
func (r *Registry) RegisterBuiltin(t Tool) {
	r.builtins[t.Name()] = t
}

// RegisterMcpServer associates a server alias with an McpClient.
func (r *Registry) RegisterMcpServer(server string, client McpClient) {
	r.mcp[server] = client
}

// Get resolves a builtin tool by id.
func (r *Registry) Get(id string) (Tool, bool) {
	t, ok := r.builtins[id]
	return t, ok
}

// GetMcp resolves an MCP tool handle for "server::toolname" references.
func (r *Registry) GetMcp(server, toolName string) (Handle, bool) {
	client, ok := r.mcp[server]
	if !ok {
		return Handle{}, false
	}
	return Handle{client: client, toolName: toolName}, true
}

// Resolve parses a reference of the form "server::toolname" or a bare
// builtin id and returns a callable Handle.
func (r *Registry) Resolve(ref string) (Handle, error) {
	if server, name, ok := strings.Cut(ref, "::"); ok {
		h, found := r.GetMcp(server, name)
		if !found {
			return Handle{}, fmt.Errorf("unknown mcp server %q", server)
		}
		return h, nil
	}
	t, ok := r.Get(ref)
	if !ok {
		return Handle{}, fmt.Errorf("unknown tool %q", ref)
	}
	return Handle{builtin: t}, nil
}

// Handle is a resolved, callable tool reference — either a builtin Tool
// or an MCP tool bound to its server client.
type Handle struct {
	builtin  Tool
	client   McpClient
	toolName string
}

// Call invokes the resolved tool.
func (h Handle) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if h.builtin != nil {
		return h.builtin.Call(ctx, input)
	}
	if h.client != nil {
		return h.client.CallTool(ctx, h.toolName, input)
	}
	return nil, fmt.Errorf("empty tool handle")
}
