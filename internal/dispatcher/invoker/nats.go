package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

const logPrefix = "[INVOKER]"

// InvokeRequest/InvokeResponse are the NATS request/reply payloads. Model
// backends listen on SubjectPrefix+model and reply with InvokeResponse.
type InvokeRequest struct {
	Prompt string `json:"prompt"`
}

type InvokeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// SubjectPrefix is the NATS subject namespace model backends subscribe
// under, one subject per model: "invoke.<model>".
const SubjectPrefix = "invoke."

// NATSInvoker calls out to a model backend over NATS request/reply,
// grounded on the teacher's internal/nats.Client.Request helper but made
// context-cancellable since spec §5 requires the model call to be
// cancellable at the transport level.
type NATSInvoker struct {
	conn *nats.Conn
}

// NewNATSInvoker wraps an established NATS connection.
func NewNATSInvoker(conn *nats.Conn) *NATSInvoker {
	return &NATSInvoker{conn: conn}
}

// Invoke implements ModelInvoker over NATS request/reply. Context
// cancellation aborts the in-flight request rather than merely abandoning
// the caller's wait, since nats.Conn.RequestWithContext ties the request's
// lifetime to ctx.
func (i *NATSInvoker) Invoke(ctx context.Context, model, prompt string) (string, error) {
	reqData, err := json.Marshal(InvokeRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("invoker: marshal request: %w", err)
	}

	subject := SubjectPrefix + model
	msg, err := i.conn.RequestWithContext(ctx, subject, reqData)
	if err != nil {
		return "", fmt.Errorf("invoker: request to %s: %w", subject, err)
	}

	var resp InvokeResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", fmt.Errorf("invoker: unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("invoker: model %s: %s", model, resp.Error)
	}

	log.Printf("%s invoked model=%s prompt_len=%d response_len=%d", logPrefix, model, len(prompt), len(resp.Text))
	return resp.Text, nil
}
