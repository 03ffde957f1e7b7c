package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentmesh/corectl/internal/coordtypes"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priority-rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestLoadRulesDefaults(t *testing.T) {
	path := writeRulesFile(t, "rules: []\n")
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.DefaultPriority != coordtypes.PriorityNormal {
		t.Fatalf("default priority = %q, want normal", rules.DefaultPriority)
	}
}

func TestLoadRulesRejectsEmptyMatch(t *testing.T) {
	path := writeRulesFile(t, "rules:\n  - priority: high\n")
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for a rule with no match field")
	}
}

func TestLoadRulesRejectsInvalidPriority(t *testing.T) {
	path := writeRulesFile(t, "rules:\n  - taskType: security\n    priority: urgent\n")
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for an invalid priority")
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	path := writeRulesFile(t, `
defaultPriority: normal
rules:
  - taskType: security
    priority: critical
  - filePrefix: "docs/"
    priority: low
`)
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	if got := rules.Classify("security", "docs/readme.md", ""); got != coordtypes.PriorityCritical {
		t.Fatalf("classify = %q, want critical (first rule should win)", got)
	}
	if got := rules.Classify("", "docs/readme.md", ""); got != coordtypes.PriorityLow {
		t.Fatalf("classify = %q, want low", got)
	}
	if got := rules.Classify("", "src/main.go", ""); got != coordtypes.PriorityNormal {
		t.Fatalf("classify = %q, want default normal", got)
	}
}

func TestClassifyKeywordIsCaseInsensitiveSubstring(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - keyword: "CVE-"
    priority: critical
`)
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got := rules.Classify("", "", "patch cve-2024-1234 now"); got != coordtypes.PriorityCritical {
		t.Fatalf("classify = %q, want critical", got)
	}
}

func TestRuleSetReload(t *testing.T) {
	path := writeRulesFile(t, "defaultPriority: low\nrules: []\n")
	rs, err := NewRuleSet(path)
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}
	if got := rs.Current().DefaultPriority; got != coordtypes.PriorityLow {
		t.Fatalf("initial default = %q, want low", got)
	}

	if err := os.WriteFile(path, []byte("defaultPriority: high\nrules: []\n"), 0o644); err != nil {
		t.Fatalf("rewrite rules file: %v", err)
	}
	rs.reload()
	if got := rs.Current().DefaultPriority; got != coordtypes.PriorityHigh {
		t.Fatalf("default after reload = %q, want high", got)
	}
}

func TestRuleSetReloadKeepsPreviousOnError(t *testing.T) {
	path := writeRulesFile(t, "defaultPriority: low\nrules: []\n")
	rs, err := NewRuleSet(path)
	if err != nil {
		t.Fatalf("NewRuleSet: %v", err)
	}

	if err := os.WriteFile(path, []byte("rules:\n  - priority: high\n"), 0o644); err != nil {
		t.Fatalf("rewrite rules file: %v", err)
	}
	rs.reload()
	if got := rs.Current().DefaultPriority; got != coordtypes.PriorityLow {
		t.Fatalf("default after failed reload = %q, want unchanged low", got)
	}
}
