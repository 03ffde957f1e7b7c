package invoker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()
	opts := &server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true}
	srv, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("new embedded nats server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSInvokerRoundTrip(t *testing.T) {
	srv := startEmbeddedNATS(t)

	backend, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	sub, err := backend.Subscribe(SubjectPrefix+"claude", func(msg *nats.Msg) {
		var req InvokeRequest
		_ = json.Unmarshal(msg.Data, &req)
		resp, _ := json.Marshal(InvokeResponse{Text: "handled: " + req.Prompt})
		_ = backend.Publish(msg.Reply, resp)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	client, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	inv := NewNATSInvoker(client)
	text, err := inv.Invoke(context.Background(), "claude", "refactor a.js")
	if err != nil {
		t.Fatal(err)
	}
	if text != "handled: refactor a.js" {
		t.Fatalf("text = %q", text)
	}
}

func TestNATSInvokerPropagatesBackendError(t *testing.T) {
	srv := startEmbeddedNATS(t)

	backend, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	sub, err := backend.Subscribe(SubjectPrefix+"claude", func(msg *nats.Msg) {
		resp, _ := json.Marshal(InvokeResponse{Error: "model overloaded"})
		_ = backend.Publish(msg.Reply, resp)
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	client, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	inv := NewNATSInvoker(client)
	if _, err := inv.Invoke(context.Background(), "claude", "p"); err == nil {
		t.Fatal("expected error from backend")
	}
}

func TestNATSInvokerHonoursCancellation(t *testing.T) {
	srv := startEmbeddedNATS(t)

	client, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	// No subscriber on this subject: the request never gets a reply, so
	// cancelling ctx must abort rather than hang.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	inv := NewNATSInvoker(client)
	if _, err := inv.Invoke(ctx, "unhandled-model", "p"); err == nil {
		t.Fatal("expected cancellation/timeout error")
	}
}
