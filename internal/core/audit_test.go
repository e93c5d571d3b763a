package core

import "testing"

// The checkpoint audit action and the checkpoint record carry different
// identifiers; both are used together when an admin pins a chain tail.
func TestCheckpointActionAndRecord(t *testing.T) {
	cp := AuditCheckpoint{ChainID: "global", TailSequence: 3}
	payload := AuditPayload{
		Action:     AuditCheckpointed,
		EntityType: "chain",
		EntityID:   cp.ChainID,
	}

	if payload.Action != "audit.checkpoint" {
		t.Errorf("Action = %q, want audit.checkpoint", payload.Action)
	}
	if cp.Signed {
		t.Error("zero-value checkpoint reports itself signed")
	}
}
