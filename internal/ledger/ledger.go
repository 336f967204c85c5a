package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store abstracts durable, append-only entry persistence.
// Append must reject out-of-order writes; reads never block appends
// beyond the time to snapshot current state.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Last(ctx context.Context) (Entry, bool, error)
	Tail(ctx context.Context, n int) ([]Entry, error)
	All(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int, error)
}

// appendRetries bounds retries of transient store failures per append.
const appendRetries = 2

// Ledger serializes all appends through one mutex and keeps the tail
// hash as an in-memory cursor, so appending never re-reads the log.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	tipHash string
	length  int
}

// Open loads the current tail from the store and returns a ready Ledger.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	last, ok, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger tail: %w", err)
	}
	tip := GenesisHash
	if ok {
		tip = last.Hash
	}
	n, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	return &Ledger{store: store, tipHash: tip, length: n}, nil
}

// AppendInput describes the event to record. Data, when non-nil, is
// marshaled once and stored as the entry's structured payload.
type AppendInput struct {
	Type      Type
	SessionID string
	AccountID string
	Data      any
}

// Append creates, hashes, and persists one entry. The critical section
// covers reading the tail hash, computing the new hash, persisting, and
// advancing the cursor, so concurrent appends always form one linear
// chain. Transient store errors are retried a bounded number of times;
// a final failure leaves the cursor untouched and is returned.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (Entry, error) {
	var data json.RawMessage
	if in.Data != nil {
		b, err := json.Marshal(in.Data)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal entry data: %w", err)
		}
		data = b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:        newEntryID(),
		TS:        time.Now().UnixMilli(),
		Type:      in.Type,
		SessionID: in.SessionID,
		AccountID: in.AccountID,
		Data:      data,
		PrevHash:  l.tipHash,
	}
	h, err := ComputeHash(l.tipHash, e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = h

	if err := l.appendWithRetry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("persist ledger entry: %w", err)
	}
	l.tipHash = e.Hash
	l.length++
	return e, nil
}

func (l *Ledger) appendWithRetry(ctx context.Context, e Entry) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = l.store.Append(ctx, e)
		if err == nil || attempt == appendRetries {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
}

// ReadTail returns the last n entries in append order.
func (l *Ledger) ReadTail(ctx context.Context, n int) ([]Entry, error) {
	return l.store.Tail(ctx, n)
}

// Len reports the number of entries appended so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// TipHash returns the hash of the current last entry (genesis if empty).
func (l *Ledger) TipHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tipHash
}

// VerifyChain recomputes every hash from genesis over a snapshot of the
// store and returns the first IntegrityError found. Live appends are
// not blocked while verification runs.
func (l *Ledger) VerifyChain(ctx context.Context) error {
	entries, err := l.store.All(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	return Verify(entries)
}

// IntegrityError reports the first chain position that fails verification.
// It is fatal to trust in the ledger and must never be auto-repaired.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation at entry %d: %s", e.Index, e.Reason)
}

// Verify checks chain linkage and per-entry hashes over entries in
// append order. It returns nil for an empty or intact chain.
func Verify(entries []Entry) error {
	prev := GenesisHash
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return &IntegrityError{Index: i, Reason: "duplicate entry id"}
		}
		seen[e.ID] = struct{}{}
		if e.PrevHash != prev {
			return &IntegrityError{Index: i, Reason: "prevHash does not match prior entry"}
		}
		h, err := ComputeHash(e.PrevHash, e)
		if err != nil {
			return &IntegrityError{Index: i, Reason: err.Error()}
		}
		if h != e.Hash {
			return &IntegrityError{Index: i, Reason: "stored hash does not match recomputation"}
		}
		prev = e.Hash
	}
	return nil
}
