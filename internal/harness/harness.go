// Package harness runs scenario-driven conformance tests for the sync
// engine: a YAML scenario enqueues mutations offline, scripts the
// backend's responses, drains once, and checks the resulting statuses and
// the recorded drain trace against a golden file.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/engine"
	"github.com/stockroom-app/stockroom/internal/entity"
	"github.com/stockroom-app/stockroom/internal/schema"
	"github.com/stockroom-app/stockroom/internal/store"
	"github.com/stockroom-app/stockroom/internal/testutil"
)

// Result captures the observable outcome of one scenario run.
type Result struct {
	// Trace is the line-oriented drain trace, one status transition per
	// line, compared against the scenario's golden file.
	Trace string

	// Statuses maps step aliases to their final mutation status.
	Statuses map[string]entity.Status

	// ExecutorCalls is the number of backend calls made during the drain.
	ExecutorCalls int

	// Pending is the queued+in-flight count after the drain.
	Pending int
}

// Run executes a scenario against a fully wired engine over a real store.
// Temp ids are deterministic (sequential), so traces are byte-stable.
func Run(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "scenario.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	validator, err := schema.New()
	require.NoError(t, err)

	registry := engine.NewTempIDRegistry(s, testutil.NewSequentialIDs(""))
	cache := engine.NewLocalCache(s)
	queue := engine.NewMutationQueue(s, cache, registry, validator)
	graph := engine.NewDependencyGraph(queue, registry)
	executor := testutil.NewScriptedExecutor()
	eng := engine.NewSyncEngine(queue, graph, registry, cache, executor, nil,
		engine.Backoff{Base: time.Millisecond, MaxAttempts: 3})

	// Enqueue all steps, tracking alias -> temp id and alias -> mutation id.
	tempIDs := make(map[string]entity.ID)
	mutIDs := make(map[string]int64)

	resolve := func(v string) string {
		if alias, ok := aliasRef(v); ok {
			return string(tempIDs[alias])
		}
		return v
	}

	for i, step := range sc.Steps {
		payload := make(entity.Payload, len(step.Payload))
		for k, v := range step.Payload {
			if sv, ok := v.(string); ok {
				payload[k] = resolve(sv)
			} else {
				payload[k] = v
			}
		}
		if len(payload) == 0 {
			payload = nil
		}

		var ref entity.Ref
		switch step.Op {
		case entity.OpCreate:
			id, err := registry.Allocate(ctx, step.Kind)
			require.NoError(t, err)
			tempIDs[step.Alias] = id
			ref = entity.Ref{Kind: step.Kind, ID: id}
		default:
			ref = entity.Ref{Kind: step.Kind, ID: entity.ID(resolve(step.Target))}
		}

		m, err := queue.Enqueue(ctx, step.Op, ref, payload)
		require.NoError(t, err, "step %d (%s %s)", i, step.Op, step.Kind)
		if step.Alias != "" {
			mutIDs[step.Alias] = m.ID
		}
	}

	for _, r := range sc.Reject {
		executor.Reject(entity.Ref{Kind: kindOfAlias(sc, r.Alias), ID: tempIDs[r.Alias]}, r.Reason)
	}
	for _, r := range sc.TransportFailures {
		executor.FailTransport(entity.Ref{Kind: kindOfAlias(sc, r.Alias), ID: tempIDs[r.Alias]}, r.Count)
	}

	var trace strings.Builder
	eng.SetEventHook(func(ev engine.DrainEvent) {
		fmt.Fprintf(&trace, "%d %s %s %s attempt=%d", ev.MutationID, ev.Op, ev.Entity, ev.Status, ev.Attempt)
		if ev.Reason != "" {
			fmt.Fprintf(&trace, " reason=%q", ev.Reason)
		}
		trace.WriteByte('\n')
	})

	require.NoError(t, eng.Drain(ctx))

	res := &Result{
		Trace:         trace.String(),
		Statuses:      make(map[string]entity.Status, len(mutIDs)),
		ExecutorCalls: executor.CallCount(),
		Pending:       queue.PendingCount(),
	}
	for alias, id := range mutIDs {
		m, ok := queue.Get(id)
		require.True(t, ok, "mutation for alias %q", alias)
		res.Statuses[alias] = m.Status
	}
	return res
}

// Check asserts the scenario's expectations against a run result.
func Check(t *testing.T, sc *Scenario, res *Result) {
	t.Helper()

	for alias, want := range sc.Expect.Statuses {
		assert.Equal(t, want, res.Statuses[alias], "status of %q", alias)
	}
	if sc.Expect.ExecutorCalls != nil {
		assert.Equal(t, *sc.Expect.ExecutorCalls, res.ExecutorCalls, "executor calls")
	}
	if sc.Expect.Pending != nil {
		assert.Equal(t, *sc.Expect.Pending, res.Pending, "pending count")
	}
}

func kindOfAlias(sc *Scenario, alias string) entity.Kind {
	for _, step := range sc.Steps {
		if step.Op == entity.OpCreate && step.Alias == alias {
			return step.Kind
		}
	}
	return ""
}
