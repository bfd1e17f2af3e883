package api

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/akios/akios/pkg/workflow"
)

// WorkflowStore holds the workflows loaded from a directory at startup
// (spec.md §6 "workflows are files on disk, not a database table") and
// the most recent run result per workflow ID, so GET /workflows/:id/status
// has something to answer without a database.
type WorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
	lastRun   map[string]*workflow.RunResult
}

// NewWorkflowStore loads every *.yaml/*.yml file directly under dir as a
// workflow definition. A file that fails to parse is skipped with its
// error returned alongside whatever did load, so one malformed workflow
// doesn't prevent the others from being served.
func NewWorkflowStore(dir string) (*WorkflowStore, error) {
	store := &WorkflowStore{
		workflows: make(map[string]*workflow.Workflow),
		lastRun:   make(map[string]*workflow.RunResult),
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("api: reading workflow directory: %w", err)
	}

	var loadErrs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		wf, parseErr := workflow.ParseFile(filepath.Join(dir, name))
		if parseErr != nil {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %v", name, parseErr))
			continue
		}
		store.workflows[wf.ID] = wf
	}

	if len(loadErrs) > 0 {
		return store, fmt.Errorf("api: %d workflow file(s) failed to load: %s", len(loadErrs), strings.Join(loadErrs, "; "))
	}
	return store, nil
}

// Get returns the workflow registered under id.
func (s *WorkflowStore) Get(id string) (*workflow.Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	return wf, ok
}

// List returns every loaded workflow ID in sorted order.
func (s *WorkflowStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecordRun stores the most recent run result for a workflow ID.
func (s *WorkflowStore) RecordRun(workflowID string, result *workflow.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun[workflowID] = result
}

// LastRun returns the most recently recorded run result for a workflow ID.
func (s *WorkflowStore) LastRun(workflowID string) (*workflow.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastRun[workflowID]
	return r, ok
}
