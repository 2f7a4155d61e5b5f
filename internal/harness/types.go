package harness

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// PageSize bounds each poll query. Zero means unbounded.
	PageSize int `yaml:"page_size,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	// Put writes records into the backing store.
	Put *Records `yaml:"put,omitempty"`

	// Drop deletes ids from the backing store behind the replica's back,
	// keyed by collection.
	Drop map[string][]string `yaml:"drop,omitempty"`

	// Remove deletes ids through the replica, keyed by collection.
	Remove map[string][]string `yaml:"remove,omitempty"`

	// Poll runs one incremental poll of every collection.
	Poll bool `yaml:"poll,omitempty"`

	// Prune runs one deletion pass of every collection.
	Prune bool `yaml:"prune,omitempty"`

	// Subscribe opens a recorded subscription.
	Subscribe *Subscription `yaml:"subscribe,omitempty"`

	// Unsubscribe closes the subscription with this label.
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// Advance moves the clock forward.
	Advance time.Duration `yaml:"advance,omitempty"`
}

// Records are documents to write, by collection.
type Records struct {
	Accounts   []*model.Account   `yaml:"accounts,omitempty"`
	Auths      []*model.Auth      `yaml:"auths,omitempty"`
	Characters []*model.Character `yaml:"characters,omitempty"`
	Origins    []*model.Origin    `yaml:"origins,omitempty"`
}

// Subscription selects what a subscribe step watches: an account snapshot
// (Account only), one of its relations (Account and Relation), or an origin
// (Origin only).
type Subscription struct {
	Label    string `yaml:"label"`
	Account  string `yaml:"account,omitempty"`
	Relation string `yaml:"relation,omitempty"`
	Origin   string `yaml:"origin,omitempty"`
}

// TraceEvent is one delivery to a subscription.
type TraceEvent struct {
	Step  int    `json:"step"`
	Label string `json:"label"`
	Value string `json:"value"`
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("step %d %s: %s", e.Step, e.Label, e.Value)
}

// State is the replica state captured after the last step.
type State struct {
	// Indices maps index name -> key -> sorted account ids.
	Indices map[string]map[string][]string `json:"indices"`

	// Children maps relation -> account id -> ordered child ids, for every
	// mirrored account.
	Children map[string]map[string][]string `json:"children"`

	// Unassigned maps relation -> child ids waiting for their account.
	Unassigned map[string][]string `json:"unassigned"`

	// Mirrored maps collection -> sorted mirrored ids.
	Mirrored map[string][]string `json:"mirrored"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every subscription delivery in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists failed assertions.
	Errors []string `json:"errors,omitempty"`

	State State `json:"state"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Transcript renders the trace and the mirrored state as stable text.
func (r *Result) Transcript() string {
	var b strings.Builder
	b.WriteString("trace:\n")
	for _, e := range r.Trace {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	writeSection(&b, "mirrored", r.State.Mirrored)
	writeSection(&b, "unassigned", r.State.Unassigned)
	return b.String()
}

func writeSection(b *strings.Builder, title string, m map[string][]string) {
	fmt.Fprintf(b, "%s:\n", title)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %s\n", k, list(m[k]))
	}
}

func list(ids []string) string {
	return "[" + strings.Join(ids, ",") + "]"
}
