package core

import (
	"errors"
	"fmt"
)

// NoApplicablePolicyReason is the reason recorded when no enabled policy
// matches any scope in the chain. This is the default-deny posture and is
// not subject to any failure mode.
const NoApplicablePolicyReason = "no applicable policy"

// StructuralRuleError marks a malformed rule definition: bad operand type,
// invalid regex, missing operand. At evaluation time it is treated as an
// evaluation error subject to the policy's failure mode, never as a silent
// no-match.
type StructuralRuleError struct {
	RuleID string
	Detail string
}

func (e *StructuralRuleError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("structural rule error: %s", e.Detail)
	}
	return fmt.Sprintf("structural error in rule '%s': %s", e.RuleID, e.Detail)
}

// EvaluationError marks a runtime failure during evaluation: store
// unavailable, deadline exceeded, unresolvable scope reference. It is always
// resolved locally via the policy's failure mode and never escapes to the
// authorize caller.
type EvaluationError struct {
	Op  string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error during %s: %v", e.Op, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ChainCorruptionError is produced only by chain verification and surfaced
// verbatim; detecting it is the whole point of verify.
type ChainCorruptionError struct {
	ChainID  string
	Sequence uint64
	Detail   string
}

func (e *ChainCorruptionError) Error() string {
	return fmt.Sprintf("audit chain '%s' corrupt at sequence %d: %s", e.ChainID, e.Sequence, e.Detail)
}

// ConcurrencyConflictError marks a lost optimistic append race on a chain
// tail. The ledger retries a bounded number of times before surfacing it.
type ConcurrencyConflictError struct {
	ChainID  string
	Sequence uint64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("audit chain '%s' tail moved while appending sequence %d", e.ChainID, e.Sequence)
}

// InvalidTransitionError rejects a backward or otherwise impossible
// lifecycle move. This is a programming error, not a recoverable condition.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s for '%s'", e.Entity, e.From, e.To, e.ID)
}

var (
	// ErrNotFound is returned by stores for unknown entity IDs.
	ErrNotFound = errors.New("not found")
)
