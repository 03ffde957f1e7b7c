package invoker

import (
	"context"
	"fmt"
)

// NoopInvoker returns a canned response without calling out anywhere,
// standing in for a real model backend in tests and dry runs.
type NoopInvoker struct {
	Response string
}

// Invoke returns n.Response, or a placeholder echoing the prompt if unset.
func (n *NoopInvoker) Invoke(ctx context.Context, model, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.Response != "" {
		return n.Response, nil
	}
	return fmt.Sprintf("noop response to %s: %s", model, prompt), nil
}
