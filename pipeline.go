package edk

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// RunState is the lifecycle state of one pipeline run.
type RunState string

const (
	RunPending RunState = "pending"
	RunRunning RunState = "running"
	// RunCompleted means every entity's chain succeeded.
	RunCompleted RunState = "completed"
	// RunCompletedWithErrors means at least one entity failed or was
	// skipped; sibling entities were unaffected.
	RunCompletedWithErrors RunState = "completed-with-errors"
	// RunAborted means a configuration-level error was detected before any
	// entity was processed.
	RunAborted RunState = "aborted"
)

// ResultStore persists an entity's computed widgets data. Implementations
// must tolerate concurrent Persist calls from entity workers; persistence
// order between entities is unspecified.
type ResultStore interface {
	Persist(group, entityID string, values map[string]interface{}) error
}

// Entity is one member of a group.
type Entity struct {
	ID    string
	Label string
	Node  *Node
}

// EntitiesFromTree lists every node of a hierarchy as a group entity, in
// depth-first order.
func EntitiesFromTree(t *Tree) []Entity {
	out := make([]Entity, 0, t.Len())
	for _, n := range t.Nodes() {
		out = append(out, Entity{ID: n.ID, Label: n.Label, Node: n})
	}
	return out
}

// EntitiesFromRows lists the rows of a reference table as group entities.
func EntitiesFromRows(rows Rows, idCol, labelCol string) ([]Entity, error) {
	out := make([]Entity, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, r := range rows {
		id := r.Get(idCol)
		if id == "" {
			return nil, errors.Errorf("row %d has no value in id column '%s'", i, idCol)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		label := r.Get(labelCol)
		if label == "" {
			label = id
		}
		out = append(out, Entity{ID: id, Label: label})
	}
	return out, nil
}

// RunSummary reports the outcome of one pipeline run. Failures holds the
// first MaxFailures causes for operator visibility; the full count is in
// Failed.
type RunSummary struct {
	Group     string
	State     RunState
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []*PluginExecutionError
	Elapsed   time.Duration
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("group %s: %s - %d entities, %d succeeded, %d failed, %d skipped in %v",
		s.Group, s.State, s.Total, s.Succeeded, s.Failed, s.Skipped, s.Elapsed)
}

// Orchestrator runs a group's chain over every group member and persists
// the results. Entities are independent of each other, so they are fanned
// out across a bounded worker pool; steps within one entity stay strictly
// sequential in the Executor.
type Orchestrator struct {
	Registry *Registry
	Store    ResultStore
	Tree     *Tree
	Tables   TableLoader

	// Concurrency bounds the entity worker pool. Defaults to NumCPU.
	Concurrency int
	// PersistPartial persists the completed prefix of a failed entity's
	// chain instead of dropping it.
	PersistPartial bool
	// MaxFailures caps the failure causes kept in the summary. Defaults
	// to 10.
	MaxFailures int

	Stats Statter
	Log   Logger
}

// NewOrchestrator returns an Orchestrator with defaults.
func NewOrchestrator(reg *Registry, store ResultStore) *Orchestrator {
	return &Orchestrator{
		Registry:    reg,
		Store:       store,
		Concurrency: runtime.NumCPU(),
		MaxFailures: 10,
		Stats:       NopStatter{},
		Log:         NopLogger{},
	}
}

// Run validates the group's chain, then executes it for every entity. A
// validation failure aborts before any entity is processed. Per-entity
// failures are recorded and do not stop sibling entities. Cancelling ctx
// skips the entities not yet started; completed results are retained.
func (o *Orchestrator) Run(ctx context.Context, g *Group, entities []Entity) (*RunSummary, error) {
	summary := &RunSummary{Group: g.GroupBy, State: RunPending, Total: len(entities)}
	if err := g.Validate(o.Registry); err != nil {
		summary.State = RunAborted
		return summary, errors.Wrap(err, "validating chain")
	}

	summary.State = RunRunning
	start := time.Now()
	exec := &Executor{Registry: o.Registry, Stats: o.Stats, Log: o.Log}

	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	maxFailures := o.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}

	var mu sync.Mutex
	eg := errgroup.Group{}
	eg.SetLimit(concurrency)
	for _, ent := range entities {
		// Cancellation is only checked between entities, never between
		// steps, so no entity is left half-computed.
		if ctx.Err() != nil {
			summary.Skipped++
			o.Stats.Count("run.entities.skipped", 1, 1)
			continue
		}
		ent := ent
		eg.Go(func() error {
			in := &Input{
				Group:    g.GroupBy,
				EntityID: ent.ID,
				Label:    ent.Label,
				Node:     ent.Node,
				Tree:     o.Tree,
				Tables:   o.Tables,
			}
			res := exec.RunChain(ctx, g, in)
			o.Stats.Count("run.entities", 1, 1)

			persist := res.Complete() || (o.PersistPartial && len(res.Values) > 0)
			var perr error
			if persist && o.Store != nil {
				perr = o.Store.Persist(g.GroupBy, res.EntityID, res.Values)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case perr != nil:
				summary.Failed++
				if len(summary.Failures) < maxFailures {
					summary.Failures = append(summary.Failures, &PluginExecutionError{
						Plugin:    "persist",
						EntityID:  res.EntityID,
						Cause:     perr,
					})
				}
			case res.Complete():
				summary.Succeeded++
			default:
				summary.Failed++
				o.Stats.Count("run.entities.failed", 1, 1)
				if len(summary.Failures) < maxFailures {
					summary.Failures = append(summary.Failures, res.Err)
				}
			}
			return nil
		})
	}
	// Workers record failures in the summary and always return nil.
	_ = eg.Wait()

	summary.Elapsed = time.Since(start)
	if summary.Failed > 0 || summary.Skipped > 0 {
		summary.State = RunCompletedWithErrors
	} else {
		summary.State = RunCompleted
	}
	o.Log.Printf("%s", summary)
	for _, f := range summary.Failures {
		o.Log.Printf("failure: %v", f)
	}
	return summary, nil
}
