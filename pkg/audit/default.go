package audit

import "sync"

// The audit ledger is the one legitimate process-wide singleton named in
// spec.md §9 ("the audit ledger is the only reasonable process-
// singleton"): every other component is constructed via explicit
// dependency injection. Mirrors the module-level get_ledger()/
// reset_ledger() pair in original_source/core/audit/ledger.py.

var (
	defaultOnce   sync.Once
	defaultLedger *Ledger
	defaultMu     sync.Mutex
)

// Default returns the process-wide ledger, opening it at dir on first
// call. Subsequent calls ignore dir and return the existing instance.
func Default(dir string, opts ...Option) (*Ledger, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	var openErr error
	defaultOnce.Do(func() {
		defaultLedger, openErr = Open(dir, opts...)
	})
	return defaultLedger, openErr
}

// SetDefault installs an explicit ledger as the process default,
// primarily for tests that need a fresh singleton per test case.
func SetDefault(l *Ledger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	// Consume the Once so a later Default call returns l instead of
	// opening a second ledger over it.
	defaultOnce.Do(func() {})
	defaultLedger = l
}

// ResetDefault clears the singleton so the next Default call reopens a
// fresh ledger; test-only.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLedger = nil
	defaultOnce = sync.Once{}
}
