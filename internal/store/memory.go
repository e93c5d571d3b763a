package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-project/custodia/internal/core"
)

// Memory is the in-process store backing decisions, audit chains, and
// checkpoints. It implements core.DecisionStore, core.AuditEntryStore, and
// core.CheckpointStore and is the default backend for serve and for the
// local CLI evaluation path.
type Memory struct {
	mu sync.RWMutex

	decisions map[string]core.Decision
	chains    map[string][]core.AuditEntry
	// checkpoints per chain, append order
	checkpoints map[string][]core.AuditCheckpoint
}

func NewMemory() *Memory {
	return &Memory{
		decisions:   make(map[string]core.Decision),
		chains:      make(map[string][]core.AuditEntry),
		checkpoints: make(map[string][]core.AuditCheckpoint),
	}
}

func (s *Memory) SaveDecision(_ context.Context, d core.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[d.ID]; exists {
		return fmt.Errorf("decision '%s' already recorded", d.ID)
	}
	s.decisions[d.ID] = d
	return nil
}

func (s *Memory) DecisionByID(_ context.Context, id string) (core.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisions[id]
	if !ok {
		return core.Decision{}, fmt.Errorf("decision '%s': %w", id, core.ErrNotFound)
	}
	return d, nil
}

func (s *Memory) TransitionDecision(_ context.Context, id string, from, to core.DecisionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return fmt.Errorf("decision '%s': %w", id, core.ErrNotFound)
	}
	if d.State != from {
		return &core.InvalidTransitionError{Entity: "decision", ID: id, From: string(d.State), To: string(to)}
	}
	if err := d.Transition(to); err != nil {
		return err
	}
	s.decisions[id] = d
	return nil
}

// ListDecisions filters and pages. Ordering is by decision ID ascending;
// IDs are K-sortable, so this is creation order and stable across pages.
func (s *Memory) ListDecisions(_ context.Context, f core.DecisionFilter) ([]core.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]core.Decision, 0, len(s.decisions))
	for _, d := range s.decisions {
		if !matchesFilter(d, f) {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return page(matched, f.Limit, f.Offset), nil
}

func (s *Memory) DecisionsInState(_ context.Context, state core.DecisionState, limit int) ([]core.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Decision
	for _, d := range s.decisions {
		if d.State == state {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(d core.Decision, f core.DecisionFilter) bool {
	if f.Actor != "" && d.Actor != f.Actor {
		return false
	}
	if f.Resource != "" && d.Resource != f.Resource {
		return false
	}
	if f.Outcome != "" && d.Outcome != f.Outcome {
		return false
	}
	if !f.From.IsZero() && d.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (s *Memory) TailEntry(_ context.Context, chainID string) (*core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainID]
	if len(chain) == 0 {
		return nil, nil
	}
	tail := chain[len(chain)-1]
	return &tail, nil
}

func (s *Memory) AppendEntry(_ context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[e.ChainID]
	if uint64(len(chain)) != e.Sequence {
		return &core.ConcurrencyConflictError{ChainID: e.ChainID, Sequence: e.Sequence}
	}
	s.chains[e.ChainID] = append(chain, e)
	return nil
}

func (s *Memory) EntriesFrom(_ context.Context, chainID string, fromSeq uint64, limit int) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainID]
	if fromSeq >= uint64(len(chain)) {
		return nil, nil
	}
	out := chain[fromSeq:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	// copy so callers never alias the live chain
	result := make([]core.AuditEntry, len(out))
	copy(result, out)
	return result, nil
}

// ChainIDs returns the IDs of all chains with at least one entry.
func (s *Memory) ChainIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Memory) SaveCheckpoint(_ context.Context, cp core.AuditCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[cp.ChainID] = append(s.checkpoints[cp.ChainID], cp)
	return nil
}

func (s *Memory) LatestCheckpoint(_ context.Context, chainID string) (core.AuditCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cps := s.checkpoints[chainID]
	if len(cps) == 0 {
		return core.AuditCheckpoint{}, fmt.Errorf("chain '%s' has no checkpoints: %w", chainID, core.ErrNotFound)
	}
	return cps[len(cps)-1], nil
}
