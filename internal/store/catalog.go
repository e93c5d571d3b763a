package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-project/custodia/internal/core"
)

// Catalog holds the administrative entities: rules, policies, and
// entitlements. It implements core.RuleStore, core.PolicyStore, and
// core.EntitlementStore. Rules and policies are usually seeded from config
// and mutated through the admin surface.
type Catalog struct {
	mu sync.RWMutex

	rules        map[string]core.Rule
	policies     map[string]core.Policy
	entitlements map[string]core.Entitlement
}

func NewCatalog() *Catalog {
	return &Catalog{
		rules:        make(map[string]core.Rule),
		policies:     make(map[string]core.Policy),
		entitlements: make(map[string]core.Entitlement),
	}
}

// Seed loads the configured rule, policy, and entitlement sets, replacing
// whatever the catalog held.
func (c *Catalog) Seed(rules []core.Rule, policies []core.Policy, entitlements []core.Entitlement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = make(map[string]core.Rule, len(rules))
	for _, r := range rules {
		c.rules[r.ID] = r
	}
	c.policies = make(map[string]core.Policy, len(policies))
	for _, p := range policies {
		c.policies[p.ID] = p
	}
	c.entitlements = make(map[string]core.Entitlement, len(entitlements))
	for _, e := range entitlements {
		c.entitlements[e.ID] = e
	}
}

func (c *Catalog) RuleByID(_ context.Context, id string) (core.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rules[id]
	if !ok || r.Deleted {
		return core.Rule{}, fmt.Errorf("rule '%s': %w", id, core.ErrNotFound)
	}
	return r, nil
}

func (c *Catalog) ListRules(_ context.Context) ([]core.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if r.Deleted {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveRule inserts or replaces a rule, bumping its version on replace.
func (c *Catalog) SaveRule(_ context.Context, r core.Rule) (core.Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.rules[r.ID]; ok {
		r.Version = prev.Version + 1
	}
	c.rules[r.ID] = r
	return r, nil
}

// DeleteRule soft-deletes: the rule stops resolving but its definition
// stays recoverable for audit.
func (c *Catalog) DeleteRule(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rules[id]
	if !ok || r.Deleted {
		return fmt.Errorf("rule '%s': %w", id, core.ErrNotFound)
	}
	r.Deleted = true
	r.Version++
	c.rules[id] = r
	return nil
}

func (c *Catalog) PolicyByID(_ context.Context, id string) (core.Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.policies[id]
	if !ok || p.Deleted {
		return core.Policy{}, fmt.Errorf("policy '%s': %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (c *Catalog) ListPolicies(_ context.Context) ([]core.Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Policy, 0, len(c.policies))
	for _, p := range c.policies {
		if p.Deleted {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) SavePolicy(_ context.Context, p core.Policy) (core.Policy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.policies[p.ID]; ok {
		p.Version = prev.Version + 1
	}
	c.policies[p.ID] = p
	return p, nil
}

func (c *Catalog) DeletePolicy(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.policies[id]
	if !ok || p.Deleted {
		return fmt.Errorf("policy '%s': %w", id, core.ErrNotFound)
	}
	p.Deleted = true
	p.Version++
	c.policies[id] = p
	return nil
}

func (c *Catalog) ActiveEntitlements(_ context.Context, subjectID string, at time.Time) ([]core.Entitlement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []core.Entitlement
	for _, e := range c.entitlements {
		if e.Deleted || e.SubjectID != subjectID {
			continue
		}
		if e.IsActive(at) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) ListEntitlements(_ context.Context) ([]core.Entitlement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Entitlement, 0, len(c.entitlements))
	for _, e := range c.entitlements {
		if e.Deleted {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) SaveEntitlement(_ context.Context, e core.Entitlement) (core.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entitlements[e.ID]; ok {
		e.Version = prev.Version + 1
	}
	c.entitlements[e.ID] = e
	return e, nil
}

func (c *Catalog) TransitionEntitlement(_ context.Context, id string, to core.EntitlementStatus) (core.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entitlements[id]
	if !ok || e.Deleted {
		return core.Entitlement{}, fmt.Errorf("entitlement '%s': %w", id, core.ErrNotFound)
	}
	if err := e.Transition(to); err != nil {
		return core.Entitlement{}, err
	}
	c.entitlements[id] = e
	return e, nil
}

// RevokeEntitlement transitions the grant to REVOKED and records who revoked
// it, as one versioned change.
func (c *Catalog) RevokeEntitlement(_ context.Context, id, revokedBy string) (core.Entitlement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entitlements[id]
	if !ok || e.Deleted {
		return core.Entitlement{}, fmt.Errorf("entitlement '%s': %w", id, core.ErrNotFound)
	}
	if err := e.Transition(core.EntitlementRevoked); err != nil {
		return core.Entitlement{}, err
	}
	e.RevokedBy = revokedBy
	c.entitlements[id] = e
	return e, nil
}

// ExpiredEntitlements returns non-terminal grants whose window has passed,
// for the expiry sweep.
func (c *Catalog) ExpiredEntitlements(_ context.Context, at time.Time) ([]core.Entitlement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []core.Entitlement
	for _, e := range c.entitlements {
		if e.Deleted || e.Status.IsTerminal() {
			continue
		}
		if e.ExpiresAt != nil && e.ExpiresAt.Before(at) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
