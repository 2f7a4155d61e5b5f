package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
)

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Index names the index (used by index): email, device or note.
	Index string `yaml:"index,omitempty"`

	// Key is the index key (used by index).
	Key string `yaml:"key,omitempty"`

	// Account is the parent account (used by children).
	Account string `yaml:"account,omitempty"`

	// Relation is characters, auths or origins (used by children and
	// unassigned).
	Relation string `yaml:"relation,omitempty"`

	// Collection is the collection name (used by mirrored).
	Collection string `yaml:"collection,omitempty"`

	// IDs is the expected id list. Order matters for children only.
	IDs []string `yaml:"ids,omitempty"`

	// Label names a subscription (used by trace_count and trace_last).
	Label string `yaml:"label,omitempty"`

	// Count is the expected number of deliveries (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected last delivery (used by trace_last).
	Value string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertIndex      = "index"
	AssertChildren   = "children"
	AssertUnassigned = "unassigned"
	AssertMirrored   = "mirrored"
	AssertTraceCount = "trace_count"
	AssertTraceLast  = "trace_last"
)

var collections = map[string]bool{
	model.AccountsCollection:   true,
	model.AuthsCollection:      true,
	model.CharactersCollection: true,
	model.OriginsCollection:    true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, &step, labels); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step, labels map[string]bool) error {
	set := 0
	for _, ok := range []bool{
		st.Put != nil, st.Drop != nil, st.Remove != nil, st.Poll, st.Prune,
		st.Subscribe != nil, st.Unsubscribe != "", st.Advance != 0,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	for _, m := range []map[string][]string{st.Drop, st.Remove} {
		for name := range m {
			if !collections[name] {
				return fmt.Errorf("steps[%d]: unknown collection %q", index, name)
			}
		}
	}

	if sub := st.Subscribe; sub != nil {
		if sub.Label == "" {
			return fmt.Errorf("steps[%d]: subscribe label is required", index)
		}
		if labels[sub.Label] {
			return fmt.Errorf("steps[%d]: duplicate subscription label %q", index, sub.Label)
		}
		labels[sub.Label] = true
		if (sub.Account == "") == (sub.Origin == "") {
			return fmt.Errorf("steps[%d]: subscribe needs exactly one of account or origin", index)
		}
		if sub.Relation != "" && sub.Account == "" {
			return fmt.Errorf("steps[%d]: relation requires account", index)
		}
		if sub.Relation != "" && !validRelation(sub.Relation) {
			return fmt.Errorf("steps[%d]: unknown relation %q", index, sub.Relation)
		}
	}
	if st.Unsubscribe != "" && !labels[st.Unsubscribe] {
		return fmt.Errorf("steps[%d]: unknown subscription %q", index, st.Unsubscribe)
	}
	if st.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertIndex:
		if a.Index != "email" && a.Index != "device" && a.Index != "note" {
			return fmt.Errorf("assertions[%d]: index must be email, device or note", index)
		}
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for index", index)
		}
	case AssertChildren:
		if a.Account == "" || !validRelation(a.Relation) {
			return fmt.Errorf("assertions[%d]: account and relation are required for children", index)
		}
	case AssertUnassigned:
		if a.Relation != string(replica.RelationCharacters) && a.Relation != string(replica.RelationAuths) {
			return fmt.Errorf("assertions[%d]: relation must be characters or auths for unassigned", index)
		}
	case AssertMirrored:
		if !collections[a.Collection] {
			return fmt.Errorf("assertions[%d]: unknown collection %q", index, a.Collection)
		}
	case AssertTraceCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceLast:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_last", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validRelation(r string) bool {
	switch replica.RelationKind(r) {
	case replica.RelationCharacters, replica.RelationAuths, replica.RelationOrigins:
		return true
	}
	return false
}
