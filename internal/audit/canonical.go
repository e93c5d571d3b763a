package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

// Canonical serializes an audit payload into its hashing form. The payload
// type is restricted to struct fields (declaration order) and string-keyed
// string maps (encoding/json sorts map keys), so two payloads with equal
// content always produce identical bytes. No floats appear anywhere in the
// payload.
func Canonical(p core.AuditPayload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing audit payload: %w", err)
	}
	return b, nil
}

// EntryHash computes the hash binding an entry to its predecessor:
// sha256(prev_hash || canonical_payload || sequence || created_at), with the
// timestamp rendered as RFC3339Nano in UTC. The genesis entry uses an empty
// prev_hash.
func EntryHash(prevHash string, canonical []byte, sequence uint64, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	h.Write([]byte(strconv.FormatUint(sequence, 10)))
	h.Write([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashEntry fills in the entry's hash from its own fields.
func HashEntry(e *core.AuditEntry) error {
	canonical, err := Canonical(e.Payload)
	if err != nil {
		return err
	}
	e.EntryHash = EntryHash(e.PrevHash, canonical, e.Sequence, e.CreatedAt)
	return nil
}
