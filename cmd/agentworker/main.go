// Command agentworker runs one agent process: the Dispatcher / Worker Loop
// (spec §4.E) bound to a single external model backend, plus the
// background observability/governance plumbing every worker carries
// (heartbeat, janitor sweep, metrics, audit log, toast notifications).
// Adapted from teacher's cmd/cliaimonitor/main.go: same flag-plus-env
// bootstrap, same "assemble collaborators, start background goroutines,
// select on shutdown signal" shape, generalized from "spawn a dashboard and
// N terminal-multiplexed coding agents" to "drive one already-addressable
// agent's coordination loop". Also writes the PID file teacher's
// InstanceManager writes, so coordctl -action status|stop|force-stop can
// find and manage this process from another terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/agentmesh/corectl/internal/audit"
	"github.com/agentmesh/corectl/internal/config"
	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/dispatcher"
	"github.com/agentmesh/corectl/internal/dispatcher/invoker"
	"github.com/agentmesh/corectl/internal/instance"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/observability/events"
	"github.com/agentmesh/corectl/internal/observability/httpapi"
	"github.com/agentmesh/corectl/internal/observability/metrics"
	"github.com/agentmesh/corectl/internal/observability/notify"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
	"github.com/agentmesh/corectl/internal/store"
)

const logPrefix = "[AGENTWORKER]"

func main() {
	rulesPath := flag.String("priority-rules", "configs/priority-rules.yaml", "priority-rules YAML file (spec §6)")
	natsURL := flag.String("nats-url", os.Getenv("NATS_URL"), "NATS server URL for model invocation (invoker.NATSInvoker); empty uses a noop invoker")
	httpAddr := flag.String("http-addr", getEnvOr("HTTP_ADDR", ":8080"), "observability HTTP API bind address (spec §4.G snapshot + live feed)")
	auditPath := flag.String("audit-db", getEnvOr("AUDIT_DB_PATH", "data/audit.db"), "local SQLite audit trail path")
	queuesFlag := flag.String("queues", "", "comma-separated queues_for_my_type; defaults to AGENT_TYPE alone")
	capsFlag := flag.String("capabilities", os.Getenv("AGENT_CAPABILITIES"), "comma-separated capability tags")
	toastDashboard := flag.String("dashboard-url", getEnvOr("DASHBOARD_URL", "http://localhost:8080"), "dashboard URL embedded in desktop toast actions")
	pidFile := flag.String("pid-file", "", "instance PID file path (default data/agentworker.<AGENT_ID>.pid); read by coordctl status|stop|force-stop")
	flag.Parse()

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("%s %v", logPrefix, err)
	}

	if *pidFile == "" {
		*pidFile = fmt.Sprintf("data/agentworker.%s.pid", env.AgentID)
	}
	instMgr := instance.NewManager(*pidFile)

	queues := splitNonEmpty(*queuesFlag)
	if len(queues) == 0 {
		queues = []string{env.AgentType}
	}
	caps := splitNonEmpty(*capsFlag)

	ruleSet, err := config.NewRuleSet(*rulesPath)
	if err != nil {
		log.Printf("%s no priority rules loaded, classification left to callers: %v", logPrefix, err)
		ruleSet = nil
	}

	client, err := store.NewClient(env.StoreURL)
	if err != nil {
		log.Fatalf("%s %v", logPrefix, err)
	}
	defer client.Close()
	st := store.New(client)

	bus := events.NewBus()
	publisher := events.NewPublisher(st, bus)
	listener := events.NewListener(st, bus)
	defer listener.Close()

	engine := queue.New(st, queue.Config{
		DedupTTL:            env.DedupTTL,
		StarvationThreshold: env.StarvationThreshold,
		MaxAttempts:         env.MaxAttempts,
	})
	locks := lock.New(st, publisher)
	reg := registry.New(st, 3*env.HeartbeatInterval, publisher)
	cons := consensus.New(st, publisher)
	janitor := registry.NewJanitor(reg, engine, locks, env.HeartbeatInterval)

	collector := metrics.NewCollector()
	alertEngine := metrics.NewAlertEngine(metrics.AlertThresholds{
		ConsecutiveFailuresMax: 3,
		QueueDepthMax:          1000,
		OldestPendingMaxAge:    env.StarvationThreshold,
		ConsensusBacklogMax:    20,
	})
	metricsFeed := metrics.NewFeed(bus, collector)
	watcher := metrics.NewWatcher(st, collector, alertEngine, engine, cons, 30*time.Second)

	auditDB, err := audit.Open(*auditPath)
	if err != nil {
		log.Fatalf("%s %v", logPrefix, err)
	}
	defer auditDB.Close()
	auditFeed := audit.NewFeed(bus, auditDB)

	notifier := notify.New("corectl", *toastDashboard)
	notifyFeed := notify.NewFeed(notifier)

	var inv invoker.ModelInvoker = &invoker.NoopInvoker{}
	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Fatalf("%s connect nats: %v", logPrefix, err)
		}
		defer nc.Close()
		inv = invoker.NewNATSInvoker(nc)
	}

	httpSrv := httpapi.New(reg, engine, locks, cons, collector, bus)
	server := &http.Server{Addr: *httpAddr, Handler: httpSrv.Handler()}

	disp := dispatcher.New(dispatcher.Config{
		AgentID:           env.AgentID,
		AgentType:         env.AgentType,
		Capabilities:      caps,
		Queues:            queues,
		HeartbeatInterval: env.HeartbeatInterval,
		DequeueTimeout:    1 * time.Second,
		TaskTimeout:       env.TaskTimeout,
		LockMargin:        60 * time.Second,
		MaxAttempts:       env.MaxAttempts,
	}, st, reg, engine, locks, inv, dispatcher.LogSink{}, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	runBG := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		log.Printf("%s started %s", logPrefix, name)
	}

	runBG("event-listener", listener.Run)
	runBG("janitor", janitor.Run)
	runBG("metrics-feed", metricsFeed.Run)
	runBG("metrics-watcher", watcher.Run)
	runBG("audit-feed", auditFeed.Run)
	if ruleSet != nil {
		runBG("priority-rules-watch", ruleSet.Watch)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifyFeed.Run(ctx, bus)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		httpSrv.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()
	log.Printf("%s observability API listening on %s", logPrefix, *httpAddr)

	if err := instMgr.Write(env.AgentID, env.AgentType, healthCheckAddr(*httpAddr)); err != nil {
		log.Printf("%s write pid file: %v", logPrefix, err)
	}
	defer func() {
		if err := instMgr.Remove(); err != nil {
			log.Printf("%s remove pid file: %v", logPrefix, err)
		}
	}()

	dispatcherErr := make(chan error, 1)
	go func() { dispatcherErr <- disp.Run(ctx) }()
	log.Printf("%s agent=%s type=%s queues=%v running", logPrefix, env.AgentID, env.AgentType, queues)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case <-shutdown:
		log.Printf("%s shutdown signal received", logPrefix)
	case err := <-dispatcherErr:
		if err != nil {
			log.Printf("%s dispatcher exited: %v", logPrefix, err)
		}
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("%s observability API exited: %v", logPrefix, err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("%s http shutdown: %v", logPrefix, err)
	}
	wg.Wait()
	log.Printf("%s stopped", logPrefix)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// healthCheckAddr turns a bind address like ":8080" into one dialable from
// another process on the same host ("localhost:8080"); net/http.Server
// happily binds the former but nothing can Dial it back.
func healthCheckAddr(bindAddr string) string {
	if strings.HasPrefix(bindAddr, ":") {
		return "localhost" + bindAddr
	}
	return bindAddr
}
