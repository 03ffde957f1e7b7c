package config

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

const logPrefix = "[CONFIG]"

// RuleSet holds a hot-swappable *Rules behind an atomic pointer, so the
// dispatcher's classification path never blocks on a reload in flight
// (spec §6: "Config files: ... loaded once at boot, reloadable on
// SIGHUP"). Grounded on teacher's instance.Manager pattern of a
// long-lived component owning its own signal channel rather than
// registering a package-level handler.
type RuleSet struct {
	path string
	cur  atomic.Pointer[Rules]
}

// NewRuleSet loads path once and returns a RuleSet ready for Current/Watch.
func NewRuleSet(path string) (*RuleSet, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	rs := &RuleSet{path: path}
	rs.cur.Store(rules)
	return rs, nil
}

// Current returns the currently active rules, safe for concurrent use.
func (rs *RuleSet) Current() *Rules {
	return rs.cur.Load()
}

// reload re-reads rs.path and swaps it in, logging and keeping the old
// rules on parse/validation failure rather than serving an empty table.
func (rs *RuleSet) reload() {
	rules, err := LoadRules(rs.path)
	if err != nil {
		log.Printf("%s reload %s failed, keeping previous rules: %v", logPrefix, rs.path, err)
		return
	}
	rs.cur.Store(rules)
	log.Printf("%s reloaded priority rules from %s (%d rules)", logPrefix, rs.path, len(rules.Rules))
}

// Watch reloads rs on SIGHUP and on every write to the watched file, until
// ctx is canceled. Both triggers are wired because the source material's
// operators reload by either means depending on deployment (systemd
// `reload` vs. an editor saving the file directly on a shared volume).
func (rs *RuleSet) Watch(ctx context.Context) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("%s fsnotify unavailable, SIGHUP-only reload: %v", logPrefix, err)
		rs.watchSignalOnly(ctx, sighup)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(rs.path); err != nil {
		log.Printf("%s watch %s failed, SIGHUP-only reload: %v", logPrefix, rs.path, err)
		rs.watchSignalOnly(ctx, sighup)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			log.Printf("%s SIGHUP received", logPrefix)
			rs.reload()
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				rs.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("%s fsnotify error: %v", logPrefix, err)
		}
	}
}

func (rs *RuleSet) watchSignalOnly(ctx context.Context, sighup chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			log.Printf("%s SIGHUP received", logPrefix)
			rs.reload()
		}
	}
}
