package edk

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Step is one entry of a group's transform chain: a plugin invocation whose
// result is captured under OutputKey. Params may contain parsed *Reference
// values pointing at earlier steps' outputs.
type Step struct {
	OutputKey string
	Kind      Kind
	Plugin    string
	Params    map[string]interface{}
}

// References returns the references declared anywhere in the step's params.
func (s *Step) References() []*Reference {
	var refs []*Reference
	collectReferences(s.Params, &refs)
	return refs
}

// Group defines the chain to run for every member of one entity kind.
// Read-only during a pipeline run.
type Group struct {
	// GroupBy is the entity kind iterated over, e.g. "taxon".
	GroupBy string
	Chain   []Step
}

// Validate statically checks the chain against the registry: every output
// key unique, every plugin registered, every reference pointing strictly
// backward, and every literal parameter passing its plugin's schema. A
// chain that fails here would fail identically for every entity, so the
// orchestrator aborts the run before processing any.
func (g *Group) Validate(reg *Registry) error {
	if g.GroupBy == "" {
		return errors.New("group has no groupBy")
	}
	if len(g.Chain) == 0 {
		return errors.Errorf("group '%s' has an empty chain", g.GroupBy)
	}
	produced := make(map[string]int, len(g.Chain))
	for i, step := range g.Chain {
		if step.OutputKey == "" {
			return errors.Errorf("group '%s' step %d has no outputKey", g.GroupBy, i)
		}
		if prev, ok := produced[step.OutputKey]; ok {
			return errors.Errorf("group '%s': outputKey '%s' used by both step %d and step %d",
				g.GroupBy, step.OutputKey, prev, i)
		}
		p, err := reg.Resolve(step.Kind, step.Plugin)
		if err != nil {
			return errors.Wrapf(err, "group '%s' step '%s'", g.GroupBy, step.OutputKey)
		}
		for _, ref := range (&step).References() {
			if ref.OutputKey == step.OutputKey {
				return errors.Errorf("group '%s': step '%s' references its own output", g.GroupBy, step.OutputKey)
			}
			if _, ok := produced[ref.OutputKey]; !ok {
				return errors.Errorf("group '%s': step '%s' references '%s', which is not produced by an earlier step",
					g.GroupBy, step.OutputKey, ref.OutputKey)
			}
		}
		if err := p.Schema().ValidateStatic(step.Plugin, step.Params); err != nil {
			return errors.Wrapf(err, "group '%s' step '%s'", g.GroupBy, step.OutputKey)
		}
		produced[step.OutputKey] = i
	}
	return nil
}

// PluginExecutionError wraps a failure raised while running one step of one
// entity's chain. Such failures are isolated: they abort the remaining
// steps of that entity, never the run.
type PluginExecutionError struct {
	Plugin    string
	OutputKey string
	EntityID  string
	Cause     error
}

func (e *PluginExecutionError) Error() string {
	return fmt.Sprintf("plugin '%s' (output '%s') failed for entity '%s': %v",
		e.Plugin, e.OutputKey, e.EntityID, e.Cause)
}

// Unwrap exposes the cause for errors.Is/As walking.
func (e *PluginExecutionError) Unwrap() error { return e.Cause }

// EntityResult is the outcome of running a chain for one entity: the
// mapping from output key to computed result (the entity's widgets data),
// plus the failure if the chain stopped early.
type EntityResult struct {
	EntityID string
	Values   map[string]interface{}
	Err      *PluginExecutionError
}

// Complete reports whether every step of the chain succeeded.
func (r *EntityResult) Complete() bool { return r.Err == nil }

// Executor runs one group's chain for one entity at a time. Steps run
// strictly sequentially in declaration order, because any step may
// reference a prior step's output. A single Executor may be shared by
// concurrent entity workers.
type Executor struct {
	Registry *Registry
	Stats    Statter
	Log      Logger
}

// NewExecutor returns an Executor with no-op stats and logging.
func NewExecutor(reg *Registry) *Executor {
	return &Executor{Registry: reg, Stats: NopStatter{}, Log: NopLogger{}}
}

// RunChain executes the group's chain for the entity described by in. The
// returned result is complete if all steps succeeded, or partial with the
// first failure attached. Output keys become visible to later steps in
// declaration order via in.Values.
func (e *Executor) RunChain(ctx context.Context, g *Group, in *Input) *EntityResult {
	res := &EntityResult{
		EntityID: in.EntityID,
		Values:   make(map[string]interface{}, len(g.Chain)),
	}
	in.Values = res.Values

	for _, step := range g.Chain {
		val, err := e.runStep(ctx, &step, in, res.Values)
		if err != nil {
			pe, ok := err.(*PluginExecutionError)
			if !ok {
				pe = &PluginExecutionError{
					Plugin:    step.Plugin,
					OutputKey: step.OutputKey,
					EntityID:  in.EntityID,
					Cause:     err,
				}
			}
			res.Err = pe
			e.Stats.Count("step.failed", 1, 1)
			e.Log.Debugf("entity %s: %v", in.EntityID, pe)
			return res
		}
		res.Values[step.OutputKey] = val
	}
	return res
}

func (e *Executor) runStep(ctx context.Context, step *Step, in *Input, results map[string]interface{}) (interface{}, error) {
	resolved, err := resolveParams(step.Params, results)
	if err != nil {
		return nil, errors.Wrap(err, "resolving references")
	}
	plugin, err := e.Registry.Resolve(step.Kind, step.Plugin)
	if err != nil {
		return nil, err
	}
	params, err := plugin.Schema().Validate(step.Plugin, resolved)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	val, err := plugin.Invoke(ctx, in, params)
	e.Stats.Timing("step.invoke", time.Since(start), 1, string(step.Kind), step.Plugin)
	if err != nil {
		return nil, errors.Wrap(err, "invoking plugin")
	}
	return val, nil
}
