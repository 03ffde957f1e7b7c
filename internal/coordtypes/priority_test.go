package coordtypes

import "testing"

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"critical", false},
		{"high", false},
		{"normal", false},
		{"low", false},
		{"deferred", false},
		{"urgent", true},
		{"", true},
	}

	for _, tt := range tests {
		p, err := ParsePriority(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePriority(%q): expected error, got %v", tt.in, p)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePriority(%q): unexpected error: %v", tt.in, err)
		}
		if string(p) != tt.in {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, p, tt.in)
		}
	}
}

func TestAllPrioritiesDescendingWeight(t *testing.T) {
	prev := DefaultWeights[PriorityCritical] + 1
	for _, p := range AllPriorities() {
		w, ok := DefaultWeights[p]
		if !ok {
			t.Fatalf("priority %s has no configured weight", p)
		}
		if w > prev {
			t.Fatalf("AllPriorities() not sorted by descending weight at %s", p)
		}
		prev = w
	}
}
