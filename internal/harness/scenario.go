package harness

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// Scenario defines one conformance scenario: a sequence of offline
// mutations, scripted backend behavior, and the expected outcome after a
// single drain.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are enqueued in order before the drain starts.
	Steps []Step `yaml:"steps"`

	// Reject scripts permanent validation rejections, by step alias.
	Reject []RejectRule `yaml:"reject,omitempty"`

	// TransportFailures scripts retryable failures, by step alias.
	TransportFailures []TransportRule `yaml:"transport_failures,omitempty"`

	// Expect validates the post-drain state.
	Expect Expectation `yaml:"expect"`
}

// Step is one enqueued mutation. Creates declare an alias; later steps
// reference it as "$alias" in payload values or as the target id.
type Step struct {
	Op      entity.Op      `yaml:"op"`
	Kind    entity.Kind    `yaml:"kind"`
	Alias   string         `yaml:"alias,omitempty"`
	Target  string         `yaml:"target,omitempty"` // update/delete: "$alias" or a real id
	Payload map[string]any `yaml:"payload,omitempty"`
}

// RejectRule scripts a terminal rejection for the aliased create.
type RejectRule struct {
	Alias  string `yaml:"alias"`
	Reason string `yaml:"reason"`
}

// TransportRule scripts count retryable failures for the aliased create.
type TransportRule struct {
	Alias string `yaml:"alias"`
	Count int    `yaml:"count"`
}

// Expectation captures the asserted post-drain state.
type Expectation struct {
	// Statuses maps step aliases to their expected final mutation status.
	Statuses map[string]entity.Status `yaml:"statuses,omitempty"`

	// ExecutorCalls is the expected total number of backend calls.
	ExecutorCalls *int `yaml:"executor_calls,omitempty"`

	// Pending is the expected queued+in-flight count after the drain.
	Pending *int `yaml:"pending,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("no steps")
	}

	aliases := make(map[string]bool) // any step alias
	created := make(map[string]bool) // aliases that name a create's temp id
	for i, st := range s.Steps {
		if !st.Op.Valid() {
			return fmt.Errorf("step %d: invalid op %q", i, st.Op)
		}
		if !st.Kind.Valid() {
			return fmt.Errorf("step %d: invalid kind %q", i, st.Kind)
		}
		if st.Alias != "" {
			if aliases[st.Alias] {
				return fmt.Errorf("step %d: duplicate alias %q", i, st.Alias)
			}
			aliases[st.Alias] = true
		}
		switch st.Op {
		case entity.OpCreate:
			if st.Alias == "" {
				return fmt.Errorf("step %d: create needs an alias", i)
			}
			created[st.Alias] = true
		default:
			if st.Target == "" {
				return fmt.Errorf("step %d: %s needs a target", i, st.Op)
			}
			if ref, ok := aliasRef(st.Target); ok && !created[ref] {
				return fmt.Errorf("step %d: unknown alias %q", i, ref)
			}
		}
		for field, val := range st.Payload {
			if sv, ok := val.(string); ok {
				if ref, ok := aliasRef(sv); ok && !created[ref] {
					return fmt.Errorf("step %d: payload field %s references unknown alias %q", i, field, ref)
				}
			}
		}
	}

	for _, r := range s.Reject {
		if !created[r.Alias] {
			return fmt.Errorf("reject rule references unknown alias %q", r.Alias)
		}
	}
	for _, r := range s.TransportFailures {
		if !created[r.Alias] {
			return fmt.Errorf("transport rule references unknown alias %q", r.Alias)
		}
	}
	for alias := range s.Expect.Statuses {
		if !aliases[alias] {
			return fmt.Errorf("expectation references unknown alias %q", alias)
		}
	}
	return nil
}

// aliasRef reports whether a value is a "$alias" reference.
func aliasRef(v string) (string, bool) {
	if strings.HasPrefix(v, "$") && len(v) > 1 {
		return v[1:], true
	}
	return "", false
}
