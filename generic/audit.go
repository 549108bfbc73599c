package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Append-only record of what the engine decided and when
// =============================================================================

// AuditEntry records one engine decision.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string // "system" for scheduled runs, otherwise the caller
	Action    AuditAction
	EntityID  EntityID
	Payload   map[string]string
}

type AuditAction string

const (
	AuditPeriodCreated      AuditAction = "period_created"
	AuditPeriodTransitioned AuditAction = "period_transitioned"
	AuditBonusAwarded       AuditAction = "bonus_awarded"
	AuditBonusProcessing    AuditAction = "bonus_processing"
	AuditPlacementAdvanced  AuditAction = "placement_advanced"
	AuditRunFailed          AuditAction = "run_failed"
)

// AuditLog stores audit entries. Append-only: no Update, no Delete.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID *EntityID
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Matches reports whether e passes the filter. Stores without a query
// language use it directly.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityID != nil && e.EntityID != *f.EntityID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
