// Package config also holds the priority-rules configuration surface spec
// §6 names: "Config files: priority-rules (map task-type/file-prefix/keyword
// -> priority) loaded once at boot, reloadable on SIGHUP." Grounded on
// teacher's internal/agents/config.go yaml.v3 load pattern, generalized from
// team-roster YAML to a rule-table YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/agentmesh/corectl/internal/coordtypes"
	"gopkg.in/yaml.v3"
)

// Rule is one priority-rules entry: a task lands at Priority if every one of
// its non-empty match fields hits. TaskType matches exactly and FilePrefix
// as a prefix of the task's file (both case-insensitive); Keyword matches as
// a case-insensitive substring of the task's prompt. A Rule with more than one field set requires all of
// them to match (conjunctive); write separate rules for alternatives.
type Rule struct {
	TaskType   string           `yaml:"taskType,omitempty"`
	FilePrefix string           `yaml:"filePrefix,omitempty"`
	Keyword    string           `yaml:"keyword,omitempty"`
	Priority   coordtypes.Priority `yaml:"priority"`
}

// Rules is the parsed priority-rules document: an ordered list evaluated
// top to bottom, first match wins, falling back to DefaultPriority when
// nothing matches.
type Rules struct {
	DefaultPriority coordtypes.Priority `yaml:"defaultPriority"`
	Rules           []Rule              `yaml:"rules"`
}

// defaultPriorityFallback is used when a loaded document omits defaultPriority.
const defaultPriorityFallback = coordtypes.PriorityNormal

// LoadRules reads and validates a priority-rules YAML file from path.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read priority rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("config: parse priority rules %s: %w", path, err)
	}
	if r.DefaultPriority == "" {
		r.DefaultPriority = defaultPriorityFallback
	}
	if !r.DefaultPriority.Valid() {
		return nil, fmt.Errorf("config: priority rules %s: invalid defaultPriority %q", path, r.DefaultPriority)
	}
	for i, rule := range r.Rules {
		if rule.TaskType == "" && rule.FilePrefix == "" && rule.Keyword == "" {
			return nil, fmt.Errorf("config: priority rules %s: rule %d matches nothing (set taskType, filePrefix, or keyword)", path, i)
		}
		if !rule.Priority.Valid() {
			return nil, fmt.Errorf("config: priority rules %s: rule %d has invalid priority %q", path, i, rule.Priority)
		}
	}
	return &r, nil
}

// Classify returns the priority the first matching rule names, or
// DefaultPriority if nothing matches. taskType and file are compared
// case-insensitively; prompt is scanned case-insensitively for Keyword.
func (r *Rules) Classify(taskType, file, prompt string) coordtypes.Priority {
	if r == nil {
		return defaultPriorityFallback
	}
	taskType = strings.ToLower(taskType)
	file = strings.ToLower(file)
	prompt = strings.ToLower(prompt)
	for _, rule := range r.Rules {
		if rule.TaskType != "" && !strings.EqualFold(rule.TaskType, taskType) {
			continue
		}
		if rule.FilePrefix != "" && !strings.HasPrefix(file, strings.ToLower(rule.FilePrefix)) {
			continue
		}
		if rule.Keyword != "" && !strings.Contains(prompt, strings.ToLower(rule.Keyword)) {
			continue
		}
		return rule.Priority
	}
	return r.DefaultPriority
}
