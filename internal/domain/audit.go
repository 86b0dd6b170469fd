package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit is the common column set carried by every persisted entity:
// identity, timestamps, actor ids, soft-delete flag and an optimistic-lock
// version. Entities include it by composition, not inheritance.
type Audit struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	CreatedBy uuid.UUID  `db:"created_by" json:"created_by"`
	UpdatedBy *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	Version   int64      `db:"version" json:"version"`
}

// NewAudit initializes audit columns for a freshly created entity.
func NewAudit(actor uuid.UUID, now time.Time) Audit {
	return Audit{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: actor,
		IsActive:  true,
		Version:   1,
	}
}

// Touch stamps an update by actor and bumps the optimistic-lock version.
func (a *Audit) Touch(actor uuid.UUID, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = &actor
	a.Version++
}
