package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/akios/akios/pkg/merkle"
)

const (
	defaultBufferSize        = 100
	defaultMemoryCap         = 1000
	defaultRotationThreshold = 50000
)

// ChainEntry is one line of archive/chain.jsonl, recording a rotated
// segment's integrity summary (spec.md §3 "Ledger Segment").
type ChainEntry struct {
	Segment    string    `json:"segment"`
	MerkleRoot string    `json:"merkle_root"`
	EventCount int       `json:"event_count"`
	RotatedAt  time.Time `json:"rotated_at"`
}

// Ledger is the append-only, Merkle-backed audit event store (spec.md
// §4.4). The zero value is not usable; construct with Open.
//
// Locking order is strictly state -> buffer, matching
// original_source/core/audit/ledger.py: the state lock guards events,
// the in-memory tree, and the counter; the buffer lock guards the
// pending-write queue and is always released before any blocking disk
// I/O that might re-enter the state lock.
type Ledger struct {
	dir        string
	activePath string
	archiveDir string
	counterPath string
	rootHashPath string

	logger *slog.Logger

	bufferSize        int
	memoryCap         int
	rotationThreshold int64

	stateLock sync.Mutex
	events    []Event
	tree      *merkle.Tree
	counter   int64

	bufferLock sync.Mutex
	buffer     []Event

	index AsyncIndex // optional secondary index; nil if not configured
}

// AsyncIndex mirrors appended events into a secondary store. Failures
// are logged and dropped; the authoritative ledger never blocks on it
// (see SPEC_FULL.md §2.3).
type AsyncIndex interface {
	IndexEvent(e Event)
}

// Option configures a Ledger at Open time.
type Option func(*Ledger)

// WithBufferSize overrides the default flush-trigger buffer size (100).
func WithBufferSize(n int) Option { return func(l *Ledger) { l.bufferSize = n } }

// WithMemoryCap overrides the default in-memory event cap (1000).
func WithMemoryCap(n int) Option { return func(l *Ledger) { l.memoryCap = n } }

// WithRotationThreshold overrides the default rotation threshold (50000).
func WithRotationThreshold(n int64) Option { return func(l *Ledger) { l.rotationThreshold = n } }

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// WithAsyncIndex attaches a secondary index fed from every Append.
func WithAsyncIndex(idx AsyncIndex) Option { return func(l *Ledger) { l.index = idx } }

// Open creates or attaches to a ledger rooted at dir (spec.md §6 project
// layout: dir is the "audit/" directory). It replays the active
// segment, if any, to repopulate the in-memory tree and counter.
func Open(dir string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		dir:               dir,
		activePath:        filepath.Join(dir, "audit_events.jsonl"),
		archiveDir:        filepath.Join(dir, "archive"),
		counterPath:       filepath.Join(dir, ".event_count"),
		rootHashPath:      filepath.Join(dir, "merkle_root.hash"),
		logger:            slog.Default(),
		bufferSize:        defaultBufferSize,
		memoryCap:         defaultMemoryCap,
		rotationThreshold: defaultRotationThreshold,
		tree:              merkle.New(),
	}
	for _, o := range opts {
		o(l)
	}

	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating ledger dir: %w", err)
	}
	if err := os.MkdirAll(l.archiveDir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating archive dir: %w", err)
	}

	if err := l.loadActiveSegment(); err != nil {
		return nil, err
	}
	l.counter = l.readCounter()

	return l, nil
}

func (l *Ledger) loadActiveSegment() error {
	f, err := os.Open(l.activePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: opening active segment: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var loaded []Event
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			l.logger.Warn("audit: skipping corrupted ledger line", "error", err)
			continue
		}
		if !e.VerifyHash() {
			l.logger.Warn("audit: event hash mismatch on load", "workflow_id", e.WorkflowID, "step", e.Step)
		}
		loaded = append(loaded, e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("audit: reading active segment: %w", err)
	}

	if len(loaded) > l.memoryCap {
		loaded = loaded[len(loaded)-l.memoryCap:]
	}
	l.events = loaded
	l.rebuildTree()
	return nil
}

func (l *Ledger) rebuildTree() {
	tree := merkle.New()
	for _, e := range l.events {
		data, err := e.CanonicalJSON()
		if err != nil {
			continue
		}
		tree.Append(data)
	}
	l.tree = tree
}

// readCounter does an O(1) read from the sidecar counter file, falling
// back to a full on-disk recount (and rebuilding the sidecar) if it is
// missing or corrupt.
func (l *Ledger) readCounter() int64 {
	b, err := os.ReadFile(l.counterPath)
	if err == nil {
		if n, parseErr := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64); parseErr == nil {
			return n
		}
		l.logger.Warn("audit: counter file corrupt, recounting from disk")
	}
	n := l.countLinesOnDisk()
	l.writeCounter(n)
	return n
}

func (l *Ledger) countLinesOnDisk() int64 {
	f, err := os.Open(l.activePath)
	if err != nil {
		return 0
	}
	defer f.Close()
	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n
}

func (l *Ledger) writeCounter(n int64) {
	if err := os.WriteFile(l.counterPath, []byte(strconv.FormatInt(n, 10)), 0o600); err != nil {
		l.logger.Error("audit: failed to persist event counter", "error", err)
	}
}

func (l *Ledger) writeRootHash() {
	root := l.tree.Root()
	if err := os.WriteFile(l.rootHashPath, []byte(root), 0o600); err != nil {
		l.logger.Error("audit: failed to persist merkle root", "error", err)
	}
}

// Append validates required fields, computes the event hash, and pushes
// it into the in-memory state and buffer (spec.md §4.4). Rotation, if
// the counter is about to cross the threshold, happens first, inside
// the state lock (avoids the TOCTOU race the Python predecessor's v1.0.6
// fixed).
func (l *Ledger) Append(workflowID string, step int, agent, action string, result Result, metadata map[string]any) (Event, error) {
	if workflowID == "" || agent == "" || action == "" {
		return Event{}, fmt.Errorf("audit: append requires workflow_id, agent, and action")
	}

	l.stateLock.Lock()
	if l.counter+1 > l.rotationThreshold {
		if err := l.rotateLocked(); err != nil {
			l.stateLock.Unlock()
			return Event{}, fmt.Errorf("audit: rotation failed: %w", err)
		}
	}

	e := NewEvent(workflowID, step, agent, action, result, metadata, time.Now())
	l.counter++
	l.events = append(l.events, e)
	if len(l.events) > l.memoryCap {
		l.events = l.events[len(l.events)-l.memoryCap:]
		l.rebuildTree()
	} else {
		data, jsonErr := e.CanonicalJSON()
		if jsonErr == nil {
			l.tree.Append(data)
		}
	}
	l.writeCounter(l.counter)
	l.stateLock.Unlock()

	l.logger.Debug("audit: event appended", "event", e)

	l.bufferLock.Lock()
	l.buffer = append(l.buffer, e)
	shouldFlush := len(l.buffer) >= l.bufferSize
	l.bufferLock.Unlock()

	if shouldFlush {
		if err := l.Flush(); err != nil {
			l.logger.Error("audit: flush after full buffer failed", "error", err)
		}
	}

	if l.index != nil {
		l.index.IndexEvent(e)
	}

	return e, nil
}

// Flush writes buffered events to the active segment file, then
// persists the counter and Merkle root sidecars.
func (l *Ledger) Flush() error {
	l.bufferLock.Lock()
	pending := l.buffer
	l.buffer = nil
	l.bufferLock.Unlock()

	if len(pending) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.activePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		// Disk-write errors are logged and retried on next append,
		// per spec.md §4.4 "Failure semantics": put the events back.
		l.bufferLock.Lock()
		l.buffer = append(pending, l.buffer...)
		l.bufferLock.Unlock()
		return fmt.Errorf("audit: opening active segment for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range pending {
		b, marshalErr := json.Marshal(e)
		if marshalErr != nil {
			continue
		}
		if _, writeErr := w.Write(append(b, '\n')); writeErr != nil {
			return fmt.Errorf("audit: writing event: %w", writeErr)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("audit: flushing segment writer: %w", err)
	}

	l.stateLock.Lock()
	l.writeCounter(l.counter)
	l.writeRootHash()
	l.stateLock.Unlock()

	return nil
}

// RootHash returns the current in-memory Merkle root.
func (l *Ledger) RootHash() string {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()
	return l.tree.Root()
}

// EventCount returns the persistent total event count for the active
// segment.
func (l *Ledger) EventCount() int64 {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()
	return l.counter
}

// Recent returns up to limit of the most recently appended in-memory
// events, oldest first, for the read-only audit API (GET /audit/events).
// It never touches disk: the in-memory slice is
// already capped at memoryCap, matching what a caller can ask to see.
func (l *Ledger) Recent(limit int) []Event {
	l.stateLock.Lock()
	defer l.stateLock.Unlock()

	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, limit)
	copy(out, l.events[len(l.events)-limit:])
	return out
}

// rotateLocked performs rotation; callers must hold stateLock.
func (l *Ledger) rotateLocked() error {
	l.stateLock.Unlock()
	flushErr := l.Flush()
	l.stateLock.Lock()
	if flushErr != nil {
		return fmt.Errorf("flushing before rotation: %w", flushErr)
	}

	root := l.tree.Root()
	eventCount := l.counter
	ts := time.Now().UTC()
	segmentName := fmt.Sprintf("ledger_%s.jsonl", ts.Format("20060102T150405.000000"))
	segmentPath := filepath.Join(l.archiveDir, segmentName)

	if err := os.Rename(l.activePath, segmentPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("archiving active segment: %w", err)
		}
		// No active file yet (rotation on an empty ledger): still
		// record the chain entry for an empty segment.
		if err := os.WriteFile(segmentPath, nil, 0o600); err != nil {
			return fmt.Errorf("creating empty archived segment: %w", err)
		}
	}

	entry := ChainEntry{Segment: segmentName, MerkleRoot: root, EventCount: int(eventCount), RotatedAt: ts}
	if err := l.appendChainEntry(entry); err != nil {
		return err
	}

	l.events = nil
	l.tree = merkle.New()
	l.counter = 0
	l.writeCounter(0)
	l.writeRootHash()

	l.logger.Info("audit: ledger rotated", "segment", segmentName, "event_count", eventCount, "merkle_root", root)
	return nil
}

func (l *Ledger) appendChainEntry(entry ChainEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling chain entry: %w", err)
	}
	chainPath := filepath.Join(l.archiveDir, "chain.jsonl")
	f, err := os.OpenFile(chainPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening chain.jsonl: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing chain entry: %w", err)
	}
	return nil
}

// VerifyIntegrity flushes, reloads every event of the active segment
// from disk, rebuilds the tree, and checks equality with the persisted
// root hash (spec.md §4.4, Testable Property 2).
func (l *Ledger) VerifyIntegrity() (bool, error) {
	if err := l.Flush(); err != nil {
		return false, err
	}

	l.stateLock.Lock()
	defer l.stateLock.Unlock()

	persistedRoot, err := os.ReadFile(l.rootHashPath)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("audit: reading persisted root: %w", err)
	}

	f, err := os.Open(l.activePath)
	if os.IsNotExist(err) {
		return len(persistedRoot) == 0, nil
	}
	if err != nil {
		return false, fmt.Errorf("audit: opening active segment: %w", err)
	}
	defer f.Close()

	tree := merkle.New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return false, nil
		}
		if !e.VerifyHash() {
			return false, nil
		}
		data, jsonErr := e.CanonicalJSON()
		if jsonErr != nil {
			return false, jsonErr
		}
		tree.Append(data)
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("audit: reading active segment: %w", err)
	}

	return tree.Root() == strings.TrimSpace(string(persistedRoot)), nil
}

// VerifySegment independently recomputes an archived segment's root and
// compares it to the chain entry recorded at rotation time (spec.md §8,
// Testable Property 3).
func (l *Ledger) VerifySegment(segmentName string) (bool, error) {
	f, err := os.Open(filepath.Join(l.archiveDir, segmentName))
	if err != nil {
		return false, fmt.Errorf("audit: opening archived segment: %w", err)
	}
	defer f.Close()

	tree := merkle.New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return false, nil
		}
		data, jsonErr := e.CanonicalJSON()
		if jsonErr != nil {
			return false, jsonErr
		}
		tree.Append(data)
	}

	chainPath := filepath.Join(l.archiveDir, "chain.jsonl")
	cf, err := os.Open(chainPath)
	if err != nil {
		return false, fmt.Errorf("audit: opening chain.jsonl: %w", err)
	}
	defer cf.Close()

	chainScanner := bufio.NewScanner(cf)
	for chainScanner.Scan() {
		var entry ChainEntry
		if err := json.Unmarshal(chainScanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Segment == segmentName {
			return entry.MerkleRoot == tree.Root(), nil
		}
	}
	return false, fmt.Errorf("audit: no chain entry for segment %s", segmentName)
}

// Close flushes any buffered events and persists final sidecars. It is
// the explicit counterpart to the Python predecessor's atexit flusher
// (spec.md §9 "Signals and shutdown").
func (l *Ledger) Close() error {
	return l.Flush()
}
