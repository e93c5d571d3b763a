package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/custodia-project/custodia/internal/core"
)

// FileMirror wraps a ledger and additionally appends every committed entry
// to a JSONL file. The file is a convenience mirror for operators; the
// store-backed chain remains the source of truth for verification.
type FileMirror struct {
	core.AuditLedger

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

func NewFileMirror(ledger core.AuditLedger, filePath string) (*FileMirror, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit mirror file: %w", err)
	}
	return &FileMirror{
		AuditLedger: ledger,
		file:        file,
		encoder:     json.NewEncoder(file),
	}, nil
}

func (m *FileMirror) Append(ctx context.Context, chainID string, payload core.AuditPayload) (core.AuditEntry, error) {
	entry, err := m.AuditLedger.Append(ctx, chainID, payload)
	if err != nil {
		return core.AuditEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.encoder.Encode(entry); err != nil {
		// the chain append already committed; a mirror write failure must
		// not fail the operation
		log.Warn().Err(err).Str("chain_id", chainID).Msg("audit mirror write failed")
	}
	return entry, nil
}

func (m *FileMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
