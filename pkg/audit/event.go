// Package audit implements the tamper-evident audit ledger (spec.md
// §4.4, Component E) backed by the Merkle tree in pkg/merkle.
//
// Grounded on _examples/original_source/src/akios/core/audit/ledger.py:
// the buffering, locking order, rotation sequence, and counter
// self-healing are carried over; the code is a from-scratch Go
// implementation using sync.Mutex instead of Python's threading.Lock.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Result classifies how a step or workflow-level action concluded.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
	ResultWarning Result = "warning"
)

// Event is one immutable audit record (spec.md §3 "AuditEvent"). Hash is
// computed over the canonical JSON of every other field.
type Event struct {
	WorkflowID string         `json:"workflow_id"`
	Step       int            `json:"step"`
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Result     Result         `json:"result"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  time.Time      `json:"timestamp"`
	Hash       string         `json:"hash"`
}

// canonicalFields is the subset of Event hashed to produce Hash; it
// excludes Hash itself.
type canonicalFields struct {
	WorkflowID string         `json:"workflow_id"`
	Step       int            `json:"step"`
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Result     Result         `json:"result"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  string         `json:"timestamp"`
}

// NewEvent builds an Event and computes its hash. Timestamp is always
// stored and hashed as RFC3339 UTC, per spec.md §3.
func NewEvent(workflowID string, step int, agent, action string, result Result, metadata map[string]any, ts time.Time) Event {
	e := Event{
		WorkflowID: workflowID,
		Step:       step,
		Agent:      agent,
		Action:     action,
		Result:     result,
		Metadata:   metadata,
		Timestamp:  ts.UTC(),
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash returns hex-SHA256 over the canonical (sorted-key) JSON
// serialization of every field except Hash.
func (e Event) computeHash() string {
	canonical := canonicalFields{
		WorkflowID: e.WorkflowID,
		Step:       e.Step,
		Agent:      e.Agent,
		Action:     e.Action,
		Result:     e.Result,
		Metadata:   sortedMetadata(e.Metadata),
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	// encoding/json sorts map[string]any keys lexically during Marshal,
	// which is what gives this serialization its canonical, sorted-key
	// property without a custom encoder.
	b, err := json.Marshal(canonical)
	if err != nil {
		// Metadata values are always produced by this package's own
		// callers from JSON-safe types; a marshal failure here is a
		// programming error, not a runtime condition to recover from.
		panic(fmt.Sprintf("audit: canonical marshal failed: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// sortedMetadata returns a copy of m with no structural change (Go maps
// already marshal with sorted keys); it exists to make the "canonical"
// claim explicit and to guard against a nil map producing `null` instead
// of `{}` in the serialized form.
func sortedMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// VerifyHash reports whether e.Hash matches a freshly recomputed hash
// over its other fields, used when replaying events from disk.
func (e Event) VerifyHash() bool {
	return e.Hash == e.computeHash()
}

// CanonicalJSON returns the leaf data stored in the Merkle tree for this
// event: the full event (including hash) serialized with sorted keys,
// per spec.md §4.3 ("leaf_data is the canonically-serialized event JSON
// with sorted keys").
func (e Event) CanonicalJSON() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit: marshaling event: %w", err)
	}
	return string(b), nil
}

// sortedKeys gives deterministic iteration over a metadata map outside
// of JSON marshaling, for LogValue's attribute ordering.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogValue renders an Event for slog with metadata keys in deterministic
// order, so two otherwise-identical log lines never differ only in map
// iteration order.
func (e Event) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 6+len(e.Metadata))
	attrs = append(attrs,
		slog.String("workflow_id", e.WorkflowID),
		slog.Int("step", e.Step),
		slog.String("agent", e.Agent),
		slog.String("action", e.Action),
		slog.String("result", string(e.Result)),
		slog.String("hash", e.Hash),
	)
	for _, k := range sortedKeys(e.Metadata) {
		attrs = append(attrs, slog.Any("metadata."+k, e.Metadata[k]))
	}
	return slog.GroupValue(attrs...)
}
