package engine

import (
	"context"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// Executor sends one resolved mutation to the backend. Implemented by the
// CRUD API client (production) and testutil.ScriptedExecutor (tests).
//
// The id and payload passed to Execute carry resolved real ids only; the
// engine rewrites temp ids before calling. For creates, id is empty and
// the returned ServerEntity.ID carries the newly assigned real id.
//
// Failures should be *ExecutorError so the engine can distinguish
// validation rejections (terminal) from transport failures (retryable);
// unclassified errors are treated as transport failures.
type Executor interface {
	Execute(ctx context.Context, op entity.Op, kind entity.Kind, id entity.ID, payload entity.Payload) (entity.ServerEntity, error)
}
