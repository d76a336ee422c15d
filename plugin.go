package edk

import (
	"context"
)

// Kind partitions plugins by their role in a transform chain. Loaders pull
// rows out of source tables, transformers compute derived values, widgets
// shape values for rendering, and exporters hand finished values to external
// consumers.
type Kind string

// The four plugin kinds. A chain step names exactly one of these along with
// the plugin name.
const (
	KindLoader      Kind = "loader"
	KindTransformer Kind = "transformer"
	KindExporter    Kind = "exporter"
	KindWidget      Kind = "widget"
)

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLoader, KindTransformer, KindExporter, KindWidget:
		return true
	}
	return false
}

// Kinds lists the known kinds in a fixed order, for introspection output.
func Kinds() []Kind {
	return []Kind{KindLoader, KindTransformer, KindExporter, KindWidget}
}

// Plugin is the interface for a single unit of pipeline computation.
// Implementations must be safe for concurrent Invoke calls, since entity
// workers share one registered instance.
type Plugin interface {
	Name() string
	Kind() Kind
	// Schema declares the parameters the plugin accepts. Every Invoke call
	// receives params that have already passed Schema().Validate.
	Schema() Schema
	// Invoke computes the plugin's result for one entity. It must not
	// mutate in or params.
	Invoke(ctx context.Context, in *Input, params Params) (interface{}, error)
}

// Func adapts a bare function to the Plugin interface, similar to
// http.HandlerFunc.
type Func struct {
	PluginName   string
	PluginKind   Kind
	ParamsSchema Schema
	Fn           func(ctx context.Context, in *Input, params Params) (interface{}, error)
}

// Name implements Plugin.
func (f *Func) Name() string { return f.PluginName }

// Kind implements Plugin.
func (f *Func) Kind() Kind { return f.PluginKind }

// Schema implements Plugin.
func (f *Func) Schema() Schema { return f.ParamsSchema }

// Invoke implements Plugin.
func (f *Func) Invoke(ctx context.Context, in *Input, params Params) (interface{}, error) {
	return f.Fn(ctx, in, params)
}

// Input is the per-entity context handed to every step of a chain. It is
// shared between steps and must be treated as read-only by plugins.
type Input struct {
	// Group is the configured group kind, e.g. "taxon".
	Group string
	// EntityID identifies the group member the chain is running for. For
	// hierarchy-backed groups this is the node id.
	EntityID string
	// Label is a human-readable name for the entity.
	Label string
	// Node is the entity's hierarchy node, or nil when the group is not
	// hierarchy-backed.
	Node *Node
	// Tree is the full hierarchy, immutable for the duration of a run. Nil
	// when no hierarchy is configured.
	Tree *Tree
	// Tables loads source tables, memoized across entity workers.
	Tables TableLoader
	// Values holds the outputs of steps that have already completed for
	// this entity, keyed by output key. The executor owns the map; plugins
	// may read it (exporters typically do) but must not modify it.
	Values map[string]interface{}
}
