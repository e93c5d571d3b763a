package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
)

const (
	// appendRetries bounds the optimistic retry loop when two appenders race
	// on the same chain tail through separate processes.
	appendRetries = 5

	// verifyBatch is the page size for walking a chain during verification.
	verifyBatch = 500
)

// Ledger is the hash-chain implementation of core.AuditLedger on top of an
// entry store. Appends to the same chain serialize on an in-process mutex;
// the store's contiguity check covers appenders in other processes.
type Ledger struct {
	store core.AuditEntryStore

	// locks holds one *sync.Mutex per chain ID.
	locks sync.Map

	// now is swappable for tests.
	now func() time.Time
}

func NewLedger(store core.AuditEntryStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) chainLock(chainID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(chainID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append writes the payload as the next entry of the chain. The first entry
// of a chain gets sequence 0 and an empty prev_hash. Losing the tail race in
// the store triggers a bounded re-read and retry.
func (l *Ledger) Append(ctx context.Context, chainID string, payload core.AuditPayload) (core.AuditEntry, error) {
	mu := l.chainLock(chainID)
	mu.Lock()
	defer mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		tail, err := l.store.TailEntry(ctx, chainID)
		if err != nil {
			return core.AuditEntry{}, err
		}

		// hash material must survive a storage round trip; TIMESTAMPTZ
		// columns hold microseconds, so never hash finer than that
		entry := core.AuditEntry{
			ChainID:   chainID,
			Payload:   payload,
			CreatedAt: l.now().UTC().Truncate(time.Microsecond),
		}
		if tail != nil {
			entry.Sequence = tail.Sequence + 1
			entry.PrevHash = tail.EntryHash
		}
		if err := HashEntry(&entry); err != nil {
			return core.AuditEntry{}, err
		}

		err = l.store.AppendEntry(ctx, entry)
		if err == nil {
			return entry, nil
		}

		var conflict *core.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			return core.AuditEntry{}, err
		}
		lastErr = err
		log.Debug().
			Str("chain_id", chainID).
			Uint64("sequence", entry.Sequence).
			Int("attempt", attempt+1).
			Msg("audit append lost tail race, retrying")
	}
	return core.AuditEntry{}, lastErr
}

// Verify walks the chain front to back, recomputing every hash and checking
// sequence contiguity and prev-hash linkage. It stops at the first break:
// everything after an altered entry is unverifiable by construction. A
// corrupt chain is a valid verification answer, not an error; the error
// return covers store failures only.
func (l *Ledger) Verify(ctx context.Context, chainID string) (core.VerifyResult, error) {
	res := core.VerifyResult{OK: true, ChainID: chainID}

	var (
		expectSeq uint64
		prevHash  string
	)
	for {
		entries, err := l.store.EntriesFrom(ctx, chainID, expectSeq, verifyBatch)
		if err != nil {
			return core.VerifyResult{}, err
		}
		if len(entries) == 0 {
			return res, nil
		}

		for i := range entries {
			e := entries[i]
			if bad := checkEntry(e, expectSeq, prevHash); bad != "" {
				seq := e.Sequence
				res.OK = false
				res.FirstBadSequence = &seq
				corrupt := &core.ChainCorruptionError{ChainID: chainID, Sequence: seq, Detail: bad}
				log.Warn().Err(corrupt).Msg("audit chain failed verification")
				return res, nil
			}
			res.ChainLength++
			expectSeq = e.Sequence + 1
			prevHash = e.EntryHash
		}
	}
}

func checkEntry(e core.AuditEntry, expectSeq uint64, prevHash string) string {
	if e.Sequence != expectSeq {
		return "sequence gap"
	}
	if e.PrevHash != prevHash {
		return "prev_hash does not match predecessor"
	}
	canonical, err := Canonical(e.Payload)
	if err != nil {
		return "payload not canonicalizable"
	}
	if EntryHash(e.PrevHash, canonical, e.Sequence, e.CreatedAt) != e.EntryHash {
		return "entry_hash mismatch"
	}
	return ""
}
