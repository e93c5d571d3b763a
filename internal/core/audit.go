package core

import (
	"context"
	"time"
)

// AuditAction describes what happened, e.g. "decision.evaluate".
type AuditAction string

const (
	AuditEvaluate  AuditAction = "decision.evaluate"
	AuditActivate  AuditAction = "decision.activate"
	AuditExpire    AuditAction = "decision.expire"
	AuditRecover   AuditAction = "decision.recover"
	AuditGrant     AuditAction = "entitlement.grant"
	AuditRevoke    AuditAction = "entitlement.revoke"
	AuditSuspend   AuditAction = "entitlement.suspend"
	AuditEntExpire AuditAction = "entitlement.expire"
	// AuditCheckpointed marks checkpoint creation; distinct from the
	// AuditCheckpoint record type below.
	AuditCheckpointed AuditAction = "audit.checkpoint"
)

// AuditPayload is the hashed material of one ledger entry. All fields are
// strings or string maps so json.Marshal is byte-stable (struct fields in
// declaration order, map keys sorted, no floating point).
type AuditPayload struct {
	Action     AuditAction       `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id"`
	Outcome    string            `json:"outcome,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// AuditEntry is one link in a per-chain hash chain.
//
//	EntryHash = sha256(PrevHash || canonical(Payload) || Sequence || CreatedAt)
//
// Sequence numbers are contiguous per chain starting at 0; the genesis entry
// has PrevHash "". Entries are never mutated or deleted.
type AuditEntry struct {
	ChainID   string       `json:"chain_id"`
	Sequence  uint64       `json:"sequence"`
	PrevHash  string       `json:"prev_hash"`
	EntryHash string       `json:"entry_hash"`
	Payload   AuditPayload `json:"payload"`
	CreatedAt time.Time    `json:"created_at"`
}

// VerifyResult is the outcome of walking a chain front to back.
type VerifyResult struct {
	OK          bool   `json:"ok"`
	ChainID     string `json:"chain_id"`
	ChainLength int    `json:"chain_length"`

	// FirstBadSequence is the first entry whose recomputed hash or sequence
	// did not check out; nil when OK. Verification stops there, since every
	// later entry is consequently unverifiable.
	FirstBadSequence *uint64 `json:"first_bad_sequence"`
}

// AuditLedger appends hash-linked entries and verifies chain integrity.
// Appends to the same chain are strictly serialized; different chains are
// independent.
type AuditLedger interface {
	Append(ctx context.Context, chainID string, payload AuditPayload) (AuditEntry, error)
	Verify(ctx context.Context, chainID string) (VerifyResult, error)
}

// AuditCheckpoint pins a chain's tail hash at a point in time, outside the
// chain itself, so creating one never mutates the chain it references.
type AuditCheckpoint struct {
	ID           string    `json:"id"`
	ChainID      string    `json:"chain_id"`
	TailSequence uint64    `json:"tail_sequence"`
	TailHash     string    `json:"tail_hash"`
	Canonical    string    `json:"canonical"`
	Signed       bool      `json:"signed"`
	KeyID        string    `json:"key_id,omitempty"`
	Signature    string    `json:"signature,omitempty"`
	ActorID      string    `json:"actor_id"`
	CreatedAt    time.Time `json:"created_at"`
}
