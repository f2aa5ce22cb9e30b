package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/stockroom-app/stockroom/internal/engine"
	"github.com/stockroom-app/stockroom/internal/entity"
)

// ExecutorCall records one invocation of the scripted executor.
type ExecutorCall struct {
	Op      entity.Op
	Kind    entity.Kind
	ID      entity.ID
	Payload entity.Payload
}

// ScriptedExecutor is a fake backend for sync engine tests.
//
// By default every call succeeds: creates are assigned sequential real ids
// ("category-1", "category-2", ...) and the response echoes the payload.
// Failures are scripted per entity reference with Reject (terminal
// validation rejection) and FailTransport (retryable failure consumed
// once per scripted entry).
//
// Every call is recorded in order, so tests can assert both replay order
// and that cascaded mutations never reached the backend.
//
// Implements engine.Executor.
type ScriptedExecutor struct {
	mu       sync.Mutex
	calls    []ExecutorCall
	rejects  map[entity.Ref]string
	flaky    map[entity.Ref]int
	seq      map[entity.Kind]int
	assignID func(kind entity.Kind) entity.ID
}

// NewScriptedExecutor creates an executor with no scripted failures.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		rejects: make(map[entity.Ref]string),
		flaky:   make(map[entity.Ref]int),
		seq:     make(map[entity.Kind]int),
	}
}

// Reject scripts a permanent validation rejection for the given reference.
// For creates the reference carries the temp id.
func (s *ScriptedExecutor) Reject(ref entity.Ref, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[ref] = reason
}

// FailTransport scripts n retryable transport failures for the given
// reference; calls beyond n succeed.
func (s *ScriptedExecutor) FailTransport(ref entity.Ref, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flaky[ref] = n
}

// AssignIDs overrides the default sequential real-id assignment for
// creates.
func (s *ScriptedExecutor) AssignIDs(fn func(kind entity.Kind) entity.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID = fn
}

// Calls returns the recorded invocations in order.
func (s *ScriptedExecutor) Calls() []ExecutorCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExecutorCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of recorded invocations.
func (s *ScriptedExecutor) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Execute implements engine.Executor. Updates and deletes match scripted
// entries by exact reference. Creates arrive with an empty id, so they
// match a scripted temp-id entry of the same kind; script at most one
// failing create per kind.
func (s *ScriptedExecutor) Execute(ctx context.Context, op entity.Op, kind entity.Kind, id entity.ID, payload entity.Payload) (entity.ServerEntity, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ExecutorCall{Op: op, Kind: kind, ID: id, Payload: payload.Clone()})

	ref := entity.Ref{Kind: kind, ID: id}
	scriptKey, scripted := s.matchLocked(ref)

	if scripted {
		if n := s.flaky[scriptKey]; n > 0 {
			s.flaky[scriptKey] = n - 1
			s.mu.Unlock()
			return entity.ServerEntity{}, &engine.ExecutorError{
				Retryable: true,
				Reason:    "connection refused",
			}
		}
		if reason, ok := s.rejects[scriptKey]; ok {
			s.mu.Unlock()
			return entity.ServerEntity{}, &engine.ExecutorError{
				Retryable: false,
				Reason:    reason,
			}
		}
	}

	switch op {
	case entity.OpCreate:
		var realID entity.ID
		if s.assignID != nil {
			realID = s.assignID(kind)
		} else {
			s.seq[kind]++
			realID = entity.ID(fmt.Sprintf("%s-%d", kind, s.seq[kind]))
		}
		s.mu.Unlock()
		return entity.ServerEntity{Kind: kind, ID: realID, Data: payload.Clone()}, nil
	case entity.OpUpdate:
		s.mu.Unlock()
		return entity.ServerEntity{Kind: kind, ID: id, Data: payload.Clone()}, nil
	default:
		s.mu.Unlock()
		return entity.ServerEntity{}, nil
	}
}

// matchLocked finds the scripted entry for a call. Updates and deletes
// match on the exact reference; creates (empty id at call time) match a
// scripted temp-id entry of the same kind. Caller must hold s.mu.
func (s *ScriptedExecutor) matchLocked(ref entity.Ref) (entity.Ref, bool) {
	check := func(key entity.Ref) bool {
		if _, ok := s.rejects[key]; ok {
			return true
		}
		if n, ok := s.flaky[key]; ok && n > 0 {
			return true
		}
		return false
	}

	if ref.ID != "" && check(ref) {
		return ref, true
	}
	if ref.ID == "" {
		for key := range s.rejects {
			if key.Kind == ref.Kind && key.ID.IsTemp() {
				return key, true
			}
		}
		for key, n := range s.flaky {
			if key.Kind == ref.Kind && key.ID.IsTemp() && n > 0 {
				return key, true
			}
		}
	}
	return entity.Ref{}, false
}
