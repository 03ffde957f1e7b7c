package dispatcher

import (
	"context"
	"log"

	"github.com/agentmesh/corectl/internal/coordtypes"
)

// ResultSink writes a completed task's model output wherever the caller
// wants it to land (a file, a PR comment, another queue). Spec §4.E's
// idempotency requirement ("writing the result artifact must be
// idempotent keyed by task.id") is the sink implementation's
// responsibility; the dispatcher calls it at most once per successful
// invocation but may call it again after a restart for a task recovered
// mid-processing.
type ResultSink interface {
	WriteResult(ctx context.Context, task coordtypes.Task, result string) error
}

// LogSink logs the result instead of writing it anywhere, standing in for
// a real sink in tests and dry runs the way invoker.NoopInvoker stands in
// for a real model backend.
type LogSink struct{}

func (LogSink) WriteResult(ctx context.Context, task coordtypes.Task, result string) error {
	log.Printf("%s result task=%s file=%s len=%d", logPrefix, task.ID, task.File, len(result))
	return nil
}
