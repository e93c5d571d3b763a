package core

import "time"

// EntitlementStatus is the lifecycle status of a grant. Transitions are
// monotone except SUSPENDED<->ACTIVE; REVOKED and EXPIRED are terminal.
type EntitlementStatus string

const (
	EntitlementPending   EntitlementStatus = "PENDING"
	EntitlementActive    EntitlementStatus = "ACTIVE"
	EntitlementSuspended EntitlementStatus = "SUSPENDED"
	EntitlementRevoked   EntitlementStatus = "REVOKED"
	EntitlementExpired   EntitlementStatus = "EXPIRED"
)

func (s EntitlementStatus) CanTransition(to EntitlementStatus) bool {
	switch s {
	case EntitlementPending:
		return to == EntitlementActive || to == EntitlementRevoked
	case EntitlementActive:
		return to == EntitlementSuspended || to == EntitlementRevoked || to == EntitlementExpired
	case EntitlementSuspended:
		return to == EntitlementActive || to == EntitlementRevoked || to == EntitlementExpired
	default:
		return false
	}
}

func (s EntitlementStatus) IsTerminal() bool {
	return s == EntitlementRevoked || s == EntitlementExpired
}

// Entitlement is a time-bounded grant of capability to an actor within a
// scope. Entitlements are administered outside the decision engine; the
// engine only reads them through a consistent snapshot.
type Entitlement struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// SubjectID is the actor holding the grant.
	SubjectID   string `yaml:"subject_id" json:"subject_id"`
	SubjectType string `yaml:"subject_type,omitempty" json:"subject_type,omitempty"`

	// ResourceID scopes the grant; empty means any resource.
	ResourceID string `yaml:"resource_id,omitempty" json:"resource_id,omitempty"`

	Status EntitlementStatus `yaml:"status" json:"status"`

	ValidFrom time.Time  `yaml:"valid_from,omitempty" json:"valid_from"`
	ExpiresAt *time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`

	// GrantedBy is empty for system-issued grants.
	GrantedBy string `yaml:"granted_by,omitempty" json:"granted_by,omitempty"`
	RevokedBy string `yaml:"-" json:"revoked_by,omitempty"`

	Version int  `yaml:"version,omitempty" json:"version"`
	Deleted bool `yaml:"-" json:"deleted,omitempty"`
}

// IsActive reports whether the grant is in force at the given instant.
func (e Entitlement) IsActive(now time.Time) bool {
	if e.Status != EntitlementActive {
		return false
	}
	if !e.ValidFrom.IsZero() && e.ValidFrom.After(now) {
		return false
	}
	if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// AppliesTo reports whether the grant covers the given resource.
func (e Entitlement) AppliesTo(resource string) bool {
	return e.ResourceID == "" || e.ResourceID == resource
}

// Transition moves the entitlement to a new status, enforcing the status
// machine above.
func (e *Entitlement) Transition(to EntitlementStatus) error {
	if !e.Status.CanTransition(to) {
		return &InvalidTransitionError{Entity: "entitlement", ID: e.ID, From: string(e.Status), To: string(to)}
	}
	e.Status = to
	e.Version++
	return nil
}
