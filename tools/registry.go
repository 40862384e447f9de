package tools

import (
	"context"
	"fmt"
)

// ParamType is the declared shape of one tool argument, used to coerce and
// validate the untyped arg map the dispatcher receives from the wire.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeFloat  ParamType = "float"
	TypeBool   ParamType = "bool"
)

// Param declares one argument a tool accepts — name, type, whether it's
// required, its default when omitted, and a human description surfaced in
// the catalog endpoint.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any
	Description string
}

// Handler is the typed signature every tool implements, closing over the
// App container instead of reaching for package-level state.
type Handler func(ctx context.Context, app *App, args map[string]any) (any, error)

// Def is one registered tool: its dispatch name, catalog metadata, declared
// parameter schema, and the handler that implements it.
type Def struct {
	Name        string
	Category    string
	Description string
	Params      []Param
	Handler     Handler
}

// Registry is the process-wide (but explicitly constructed, never global)
// mapping from tool name to its Def. Built up by repeated Register calls
// from RegisterAll, then handed to Dispatch.
type Registry struct {
	defs  map[string]*Def
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds one tool definition. Panics on a duplicate name — a
// programming error caught at startup, not a runtime condition.
func (r *Registry) Register(def Def) {
	if _, exists := r.defs[def.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration for %q", def.Name))
	}
	d := def
	r.defs[def.Name] = &d
	r.order = append(r.order, def.Name)
}

// Lookup returns the Def for name, or (nil, false) if unregistered.
func (r *Registry) Lookup(name string) (*Def, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Catalog returns every registered Def in registration order, the shape
// GET /mcp/tools serializes.
func (r *Registry) Catalog() []*Def {
	out := make([]*Def, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}
