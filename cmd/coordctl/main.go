// Command coordctl is a small operator CLI against the coordination core's
// store-backed state, adapted from teacher's cmd/dbctl/main.go: same
// "-action <verb> plus verb-specific flags, optionally -json" shape,
// retargeted from the memory database's agent_control table at the
// priority queues, file locks, agent registry and consensus requests spec
// §6 exposes as the wire-compatible keyspace. The status/stop/force-stop
// verbs are carried over from teacher's cmd/cliaimonitor -status/-stop/
// -force-stop flags, retargeted from a single well-known PID file to one
// per agentworker instance (internal/instance).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/agentmesh/corectl/internal/config"
	"github.com/agentmesh/corectl/internal/consensus"
	"github.com/agentmesh/corectl/internal/coordtypes"
	"github.com/agentmesh/corectl/internal/instance"
	"github.com/agentmesh/corectl/internal/lock"
	"github.com/agentmesh/corectl/internal/queue"
	"github.com/agentmesh/corectl/internal/registry"
	"github.com/agentmesh/corectl/internal/store"
)

func main() {
	action := flag.String("action", "", "enqueue | stats | locks | agents | consensus-request | consensus-vote | consensus-list | status | stop | force-stop")
	storeURL := flag.String("store", getEnvOr("STORE_URL", "redis://localhost:6379/0"), "store connection string")
	jsonOutput := flag.Bool("json", false, "output as JSON")

	pidFile := flag.String("pid-file", "", "instance PID file path (default data/agentworker.<-agent>.pid); used by status, stop, force-stop")
	stopWait := flag.Duration("wait", 10*time.Second, "stop: how long to wait for graceful exit before reporting failure")

	queueName := flag.String("queue", "", "logical queue name")
	file := flag.String("file", "", "file path (enqueue payload / lock path)")
	prompt := flag.String("prompt", "", "prompt text (enqueue payload)")
	taskType := flag.String("type", "", "task type (enqueue payload)")
	priority := flag.String("priority", "", "priority override; classified from priority-rules when empty")
	rulesPath := flag.String("priority-rules", "configs/priority-rules.yaml", "priority-rules YAML for classification when -priority is omitted")

	operation := flag.String("operation", "", "consensus operation tag")
	files := flag.String("files", "", "comma-separated affected files")
	reason := flag.String("reason", "", "consensus request reason / vote comment")
	requiredApprovals := flag.Int("required-approvals", 2, "consensus required approvals")
	timeout := flag.Duration("timeout", 5*time.Minute, "consensus request timeout")
	initiator := flag.String("initiator", "", "consensus request initiator agent id")
	requestID := flag.String("request", "", "consensus request id")
	agentID := flag.String("agent", "", "agent id (consensus vote / agents filter / status, stop, force-stop pid file selector)")
	approve := flag.Bool("approve", true, "consensus vote outcome")

	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "usage: coordctl -action <verb> [flags]")
		fmt.Fprintln(os.Stderr, "verbs: enqueue, stats, locks, agents, consensus-request, consensus-vote, consensus-list, status, stop, force-stop")
		os.Exit(1)
	}

	// Instance management talks to a PID file on the local machine, not the
	// shared store, so it is handled before the store connection below (and
	// works even when the target worker can't reach the store at all).
	switch *action {
	case "status":
		runInstanceStatus(resolvePIDFile(*pidFile, *agentID), *jsonOutput)
		return
	case "stop":
		runInstanceStop(resolvePIDFile(*pidFile, *agentID), *stopWait, false)
		return
	case "force-stop":
		runInstanceStop(resolvePIDFile(*pidFile, *agentID), *stopWait, true)
		return
	}

	client, err := store.NewClient(*storeURL)
	if err != nil {
		fail(err)
	}
	defer client.Close()
	st := store.New(client)
	ctx := context.Background()

	switch *action {
	case "enqueue":
		runEnqueue(ctx, st, enqueueArgs{
			queue: *queueName, file: *file, prompt: *prompt, taskType: *taskType,
			priority: *priority, rulesPath: *rulesPath, jsonOutput: *jsonOutput,
		})
	case "stats":
		runStats(ctx, st, *queueName, *jsonOutput)
	case "locks":
		runLocks(ctx, st, *jsonOutput)
	case "agents":
		runAgents(ctx, st, *jsonOutput)
	case "consensus-request":
		runConsensusRequest(ctx, st, consensusRequestArgs{
			operation: *operation, files: *files, reason: *reason,
			requiredApprovals: *requiredApprovals, timeout: *timeout,
			initiator: *initiator, jsonOutput: *jsonOutput,
		})
	case "consensus-vote":
		runConsensusVote(ctx, st, *requestID, *agentID, *approve, *reason, *jsonOutput)
	case "consensus-list":
		runConsensusList(ctx, st, *jsonOutput)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		os.Exit(1)
	}
}

type enqueueArgs struct {
	queue, file, prompt, taskType, priority, rulesPath string
	jsonOutput                                         bool
}

func runEnqueue(ctx context.Context, st store.Store, a enqueueArgs) {
	if a.queue == "" || a.file == "" {
		fail(fmt.Errorf("enqueue requires -queue and -file"))
	}

	p := coordtypes.Priority(a.priority)
	if p == "" {
		rules, err := config.LoadRules(a.rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coordctl: no priority rules at %s, defaulting to normal: %v\n", a.rulesPath, err)
			p = coordtypes.PriorityNormal
		} else {
			p = rules.Classify(a.taskType, a.file, a.prompt)
		}
	}
	if !p.Valid() {
		fail(fmt.Errorf("invalid priority %q", p))
	}

	task := coordtypes.Task{
		ID:       uuid.NewString(),
		File:     a.file,
		Prompt:   a.prompt,
		Type:     a.taskType,
		Priority: p,
		Source:   "coordctl",
	}

	engine := queue.New(st, queue.Config{})
	res, err := engine.Enqueue(ctx, a.queue, task)
	if err != nil {
		fail(err)
	}
	emit(a.jsonOutput, res, func() {
		if res.Deduplicated {
			fmt.Printf("deduplicated: existing task %s\n", res.TaskID)
		} else {
			fmt.Printf("accepted: task %s priority=%s\n", res.TaskID, p)
		}
	})
}

func runStats(ctx context.Context, st store.Store, queueName string, jsonOutput bool) {
	engine := queue.New(st, queue.Config{})
	if queueName != "" {
		stats, err := engine.Stats(ctx, queueName)
		if err != nil {
			fail(err)
		}
		emit(jsonOutput, stats, func() { printStats(*stats) })
		return
	}
	names, err := engine.KnownQueues(ctx)
	if err != nil {
		fail(err)
	}
	var all []queue.Stats
	for _, q := range names {
		s, err := engine.Stats(ctx, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coordctl: stats %s: %v\n", q, err)
			continue
		}
		all = append(all, *s)
	}
	emit(jsonOutput, all, func() {
		for _, s := range all {
			printStats(s)
		}
	})
}

func printStats(s queue.Stats) {
	fmt.Printf("queue %s:\n", s.Queue)
	for _, t := range s.Tiers {
		fmt.Printf("  %-9s pending=%-6d enqueued=%-8.0f dequeued=%-8.0f avg_ms=%-8.1f weight=%g\n",
			t.Priority, t.Pending, t.Enqueued, t.Dequeued, t.AvgProcessingMS, t.Weight)
	}
}

func runLocks(ctx context.Context, st store.Store, jsonOutput bool) {
	// Store has no key-scan primitive (spec §4.A's vocabulary is
	// deliberately minimal), so locks are only discoverable through the
	// "locks:by-owner:<agent>" index of currently-registered agents, the
	// same route internal/observability/httpapi's snapshot builder takes.
	reg := registry.New(st, 0, nil)
	agents, err := reg.ListActive(ctx)
	if err != nil {
		fail(err)
	}
	agentIDs := make([]string, 0, len(agents))
	for _, a := range agents {
		agentIDs = append(agentIDs, a.ID)
	}

	mgr := lock.New(st, nil)
	locks, err := mgr.ListLocksForAgents(ctx, agentIDs)
	if err != nil {
		fail(err)
	}
	emit(jsonOutput, locks, func() {
		for path, l := range locks {
			forced := ""
			if l.Forced {
				forced = fmt.Sprintf(" forced reason=%q", l.Reason)
			}
			fmt.Printf("%s owner=%s acquired=%s%s\n", path, l.Owner, l.AcquiredAt.Format(time.RFC3339), forced)
		}
	})
}

func runAgents(ctx context.Context, st store.Store, jsonOutput bool) {
	reg := registry.New(st, 0, nil)
	agents, err := reg.ListActive(ctx)
	if err != nil {
		fail(err)
	}
	emit(jsonOutput, agents, func() {
		for _, a := range agents {
			fmt.Printf("%s type=%s status=%s task=%s last_heartbeat=%s\n",
				a.ID, a.Type, a.Status, a.CurrentTaskID, a.LastHeartbeat.Format(time.RFC3339))
		}
	})
}

type consensusRequestArgs struct {
	operation, files, reason string
	requiredApprovals        int
	timeout                  time.Duration
	initiator                string
	jsonOutput               bool
}

func runConsensusRequest(ctx context.Context, st store.Store, a consensusRequestArgs) {
	if a.operation == "" || a.initiator == "" {
		fail(fmt.Errorf("consensus-request requires -operation and -initiator"))
	}
	coord := consensus.New(st, nil)
	id, err := coord.Request(ctx, a.operation, splitNonEmpty(a.files), a.reason, a.requiredApprovals, a.timeout, a.initiator)
	if err != nil {
		fail(err)
	}
	emit(a.jsonOutput, map[string]string{"request_id": id}, func() {
		fmt.Printf("request %s created\n", id)
	})
}

func runConsensusVote(ctx context.Context, st store.Store, requestID, agentID string, approve bool, comment string, jsonOutput bool) {
	if requestID == "" || agentID == "" {
		fail(fmt.Errorf("consensus-vote requires -request and -agent"))
	}
	coord := consensus.New(st, nil)
	req, err := coord.Vote(ctx, requestID, agentID, approve, comment)
	if err != nil {
		fail(err)
	}
	emit(jsonOutput, req, func() {
		fmt.Printf("request %s status=%s\n", req.ID, req.Status)
	})
}

func runConsensusList(ctx context.Context, st store.Store, jsonOutput bool) {
	coord := consensus.New(st, nil)
	pending, err := coord.PendingRequests(ctx)
	if err != nil {
		fail(err)
	}
	emit(jsonOutput, pending, func() {
		for _, r := range pending {
			fmt.Printf("%s operation=%s status=%s expires=%s\n", r.ID, r.Operation, r.Status, r.ExpiresAt.Format(time.RFC3339))
		}
	})
}

// resolvePIDFile mirrors agentworker's own default so `coordctl -action
// status -agent worker-1` finds the file that agent wrote without the
// operator having to repeat the path.
func resolvePIDFile(explicit, agentID string) string {
	if explicit != "" {
		return explicit
	}
	if agentID == "" {
		fail(fmt.Errorf("status/stop/force-stop require -pid-file or -agent"))
	}
	return fmt.Sprintf("data/agentworker.%s.pid", agentID)
}

func runInstanceStatus(pidFile string, jsonOutput bool) {
	mgr := instance.NewManager(pidFile)
	info, err := mgr.Read()
	if err != nil {
		if os.IsNotExist(err) {
			emit(jsonOutput, map[string]any{"running": false}, func() {
				fmt.Printf("no instance recorded at %s\n", pidFile)
			})
			return
		}
		fail(err)
	}

	alive := instance.IsAlive(info.PID)
	responding := instance.HealthCheck(info.HTTPAddr) == nil

	type statusView struct {
		instance.Info
		Running    bool   `json:"running"`
		Responding bool   `json:"responding"`
		Uptime     string `json:"uptime"`
	}
	view := statusView{Info: *info, Running: alive, Responding: responding, Uptime: humanize.Time(info.StartedAt)}

	emit(jsonOutput, view, func() {
		state := "STOPPED"
		if alive {
			state = "RUNNING"
		}
		fmt.Printf("instance:   %s\n", state)
		fmt.Printf("  agent:    %s (%s)\n", info.AgentID, info.AgentType)
		fmt.Printf("  pid:      %d\n", info.PID)
		fmt.Printf("  http:     %s (responding: %t)\n", info.HTTPAddr, responding)
		fmt.Printf("  started:  %s\n", humanize.Time(info.StartedAt))
		if !alive {
			fmt.Println("  note:     pid file is stale; run -action stop to clear it")
		}
	})
}

func runInstanceStop(pidFile string, wait time.Duration, force bool) {
	mgr := instance.NewManager(pidFile)
	info, err := mgr.Read()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("no instance recorded at %s\n", pidFile)
			return
		}
		fail(err)
	}

	if !instance.IsAlive(info.PID) {
		fmt.Printf("pid %d already gone; removing stale pid file\n", info.PID)
		_ = mgr.Remove()
		return
	}

	if force {
		if err := instance.Kill(info.PID); err != nil {
			fail(err)
		}
		fmt.Printf("force-killed pid %d\n", info.PID)
	} else {
		if err := instance.Stop(info.PID, wait); err != nil {
			fmt.Fprintf(os.Stderr, "coordctl: graceful stop of pid %d did not complete: %v\n", info.PID, err)
			fmt.Fprintln(os.Stderr, "try -action force-stop")
			os.Exit(1)
		}
		fmt.Printf("stopped pid %d\n", info.PID)
	}
	_ = mgr.Remove()
}

func emit(jsonOutput bool, v any, textFn func()) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fail(err)
		}
		return
	}
	textFn()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
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

func fail(err error) {
	fmt.Fprintf(os.Stderr, "coordctl: %v\n", err)
	os.Exit(1)
}
