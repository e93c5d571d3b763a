package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/custodia-project/custodia/internal/core"
)

// Checkpointer pins chain tails into signed checkpoints. A checkpoint lives
// outside the chain it references, so creating one never mutates the chain.
type Checkpointer struct {
	entries     core.AuditEntryStore
	checkpoints core.CheckpointStore

	// key signs checkpoints with HMAC-SHA256; empty means unsigned
	// checkpoints are recorded.
	key   []byte
	keyID string

	now func() time.Time
}

func NewCheckpointer(entries core.AuditEntryStore, checkpoints core.CheckpointStore, key []byte, keyID string) *Checkpointer {
	return &Checkpointer{
		entries:     entries,
		checkpoints: checkpoints,
		key:         key,
		keyID:       keyID,
		now:         time.Now,
	}
}

// canonicalCheckpoint is the signed material: chain, tail position, tail
// hash, and signing time, joined with newlines.
func canonicalCheckpoint(chainID string, tailSeq uint64, tailHash string, at time.Time) string {
	return fmt.Sprintf("%s\n%d\n%s\n%s", chainID, tailSeq, tailHash, at.UTC().Format(time.RFC3339Nano))
}

// Checkpoint records the chain's current tail. An empty chain cannot be
// checkpointed.
func (c *Checkpointer) Checkpoint(ctx context.Context, chainID, actorID string) (core.AuditCheckpoint, error) {
	tail, err := c.entries.TailEntry(ctx, chainID)
	if err != nil {
		return core.AuditCheckpoint{}, err
	}
	if tail == nil {
		return core.AuditCheckpoint{}, fmt.Errorf("chain '%s' has no entries to checkpoint: %w", chainID, core.ErrNotFound)
	}

	at := c.now().UTC()
	cp := core.AuditCheckpoint{
		ID:           xid.New().String(),
		ChainID:      chainID,
		TailSequence: tail.Sequence,
		TailHash:     tail.EntryHash,
		Canonical:    canonicalCheckpoint(chainID, tail.Sequence, tail.EntryHash, at),
		ActorID:      actorID,
		CreatedAt:    at,
	}
	if len(c.key) > 0 {
		cp.Signed = true
		cp.KeyID = c.keyID
		cp.Signature = sign(c.key, cp.Canonical)
	}

	if err := c.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return core.AuditCheckpoint{}, err
	}
	return cp, nil
}

// VerifyCheckpoint recomputes the signature over the stored canonical form.
// Unsigned checkpoints verify trivially.
func (c *Checkpointer) VerifyCheckpoint(cp core.AuditCheckpoint) bool {
	if !cp.Signed {
		return true
	}
	if len(c.key) == 0 {
		return false
	}
	expected := sign(c.key, cp.Canonical)
	return hmac.Equal([]byte(expected), []byte(cp.Signature))
}

func sign(key []byte, canonical string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
