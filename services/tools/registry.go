package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/services"
)

// ErrToolAlreadyRegistered is returned when trying to register a duplicate tool
var ErrToolAlreadyRegistered = errors.New("tool already registered")

// Tool describes a callable MCP tool and the scopes it requires
type Tool struct {
	Name        string
	Description string
	Scopes      []string
	Handler     middleware.Operation
}

// Info is the public listing of a registered tool
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Scopes      []string `json:"scopes"`
}

type entry struct {
	info Info
	call middleware.Operation
}

// Registry holds guarded tool operations by name
type Registry struct {
	mu    sync.RWMutex
	guard *middleware.Guard
	tools map[string]entry
}

// NewRegistry creates a registry whose tools are wrapped by guard
func NewRegistry(guard *middleware.Guard) *Registry {
	return &Registry{
		guard: guard,
		tools: make(map[string]entry),
	}
}

// Register wraps the tool handler with the guard and stores it
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return errors.New("tool handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return ErrToolAlreadyRegistered
	}

	scopes := make([]string, len(tool.Scopes))
	copy(scopes, tool.Scopes)

	r.tools[tool.Name] = entry{
		info: Info{Name: tool.Name, Description: tool.Description, Scopes: scopes},
		call: r.guard.Wrap(tool.Name, scopes, tool.Handler),
	}
	return nil
}

// Call runs the named tool through its guard
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	e, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return nil, services.ErrToolNotFound
	}
	return e.call(ctx, args)
}

// List returns registered tools sorted by name
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, e := range r.tools {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
