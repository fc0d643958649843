// Package ledger records which tool invocations already ran so the executor
// can refuse replays.
//
// Two keys are tracked:
//   - the invocation id, remembered for the lifetime of the Ledger
//   - the execution signature (tool name + canonical arguments), remembered
//     for a TTL window and only enforced across different batches
//
// Eviction of expired signatures is lazy and happens on every check.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/relance/pkg/logging"
	"github.com/entrhq/relance/pkg/types"
)

// DefaultTTL is the signature dedup window used when none is configured.
const DefaultTTL = 5 * time.Second

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("ledger")
	if err != nil {
		debugLog.Warnf("Failed to initialize ledger logger, using stderr fallback: %v", err)
	}
}

// Entry is one allowed execution.
type Entry struct {
	Signature  Signature
	ID         string
	BatchID    string
	ExecutedAt time.Time
}

// Denial is returned by CheckAndRecord when an invocation must not run.
type Denial struct {
	// Reason is CodeDuplicateID or CodeDuplicateSignature.
	Reason types.ErrorCode

	// ID is the denied invocation id.
	ID string

	// Signature is the execution signature of the denied invocation.
	Signature Signature

	// Previous is the entry that caused the denial. It is nil for id denials.
	Previous *Entry

	// RetryAfter is how long until the signature may run again from another
	// batch. Zero for id denials, which never expire.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (d *Denial) Error() string {
	switch d.Reason {
	case types.CodeDuplicateID:
		return fmt.Sprintf("tool call id %q was already executed", d.ID)
	case types.CodeDuplicateSignature:
		return fmt.Sprintf("identical tool call already executed in batch %q, retry after %s", d.Previous.BatchID, d.RetryAfter)
	default:
		return fmt.Sprintf("tool call %q denied: %s", d.ID, d.Reason)
	}
}

// Stats is a point-in-time view of the ledger size.
type Stats struct {
	IDs        int
	Signatures int
}

// Ledger is the in-memory execution ledger. It is safe for concurrent use;
// CheckAndRecord is an atomic check-and-insert.
type Ledger struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	ids        map[string]struct{}
	signatures map[Signature]Entry
	logger     *logging.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTTL sets the signature dedup window. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for denial diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		ttl:        DefaultTTL,
		now:        time.Now,
		ids:        make(map[string]struct{}),
		signatures: make(map[Signature]Entry),
		logger:     debugLog,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TTL returns the configured signature window.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// CheckAndRecord decides whether req may execute within batchID.
//
// It returns nil and records the invocation when allowed, or a *Denial when
// the id was already recorded or the same signature ran within the TTL from
// a different batch. Denied attempts are not recorded. A repeat within the
// same batch records its id but keeps the first entry's ExecutedAt, so a
// batch cannot extend its own signature window.
func (l *Ledger) CheckAndRecord(req types.ToolInvocationRequest, batchID string) error {
	sig := NewSignature(req.ToolName, req.ArgumentsJSON)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictExpired(now)

	if _, seen := l.ids[req.ID]; seen {
		l.logger.Warnf("Denied tool call %s (%s): duplicate id", req.ID, req.ToolName)
		return &Denial{Reason: types.CodeDuplicateID, ID: req.ID, Signature: sig}
	}

	prev, seenSig := l.signatures[sig]
	if seenSig && prev.BatchID != batchID {
		retryAfter := l.ttl - now.Sub(prev.ExecutedAt)
		l.logger.Warnf("Denied tool call %s (%s): signature ran in batch %s %s ago",
			req.ID, req.ToolName, prev.BatchID, now.Sub(prev.ExecutedAt))
		return &Denial{
			Reason:     types.CodeDuplicateSignature,
			ID:         req.ID,
			Signature:  sig,
			Previous:   &prev,
			RetryAfter: retryAfter,
		}
	}

	l.ids[req.ID] = struct{}{}
	if seenSig {
		// same-batch repeat: the window stays anchored at the first run
		return nil
	}
	l.signatures[sig] = Entry{
		Signature:  sig,
		ID:         req.ID,
		BatchID:    batchID,
		ExecutedAt: now,
	}
	return nil
}

// Seen reports whether an invocation id was ever recorded.
func (l *Ledger) Seen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Lookup returns the live entry for a signature, if any.
func (l *Ledger) Lookup(sig Signature) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpired(l.now())
	entry, ok := l.signatures[sig]
	return entry, ok
}

// Stats returns the number of remembered ids and live signatures.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpired(l.now())
	return Stats{IDs: len(l.ids), Signatures: len(l.signatures)}
}

// evictExpired drops signature entries older than the TTL. Ids are never evicted.
// The caller must hold l.mu.
func (l *Ledger) evictExpired(now time.Time) {
	for sig, entry := range l.signatures {
		if now.Sub(entry.ExecutedAt) >= l.ttl {
			delete(l.signatures, sig)
		}
	}
}
