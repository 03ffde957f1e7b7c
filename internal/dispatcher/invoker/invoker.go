// Package invoker implements the opaque "call an external model" seam spec
// §1 places out of scope: "the LLM API clients themselves (treated as an
// opaque invoke(model, prompt) -> text call the worker loop performs)".
package invoker

import "context"

// ModelInvoker performs the one call the core treats as opaque I/O. Per
// spec §5, the call must be cancellable at the transport level; every
// implementation honours ctx cancellation.
type ModelInvoker interface {
	Invoke(ctx context.Context, model, prompt string) (string, error)
}
