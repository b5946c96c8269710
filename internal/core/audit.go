package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit entity types.
const (
	EntityBooking = "booking"
	EntityAsset   = "asset"
	EntityBulkSku = "bulk_sku"
)

// auditRecord is one audit_logs row to be written. Before and After are
// marshalled to JSONB; nil values are stored as NULL.
type auditRecord struct {
	ActorUserID string
	EntityType  string
	EntityID    string
	Action      string
	Before      any
	After       any
}

// writeAuditTx appends an audit entry within the caller's transaction so the
// entry commits or rolls back with the state change it describes.
func writeAuditTx(ctx context.Context, q pgxQuerier, rec auditRecord) error {
	before, err := marshalNullable(rec.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal audit before state: %w", err)
	}
	after, err := marshalNullable(rec.After)
	if err != nil {
		return fmt.Errorf("failed to marshal audit after state: %w", err)
	}

	var actor *string
	if rec.ActorUserID != "" {
		actor = &rec.ActorUserID
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO audit_logs (actor_user_id, entity_type, entity_id, action, before_json, after_json)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, actor, rec.EntityType, rec.EntityID, rec.Action, before, after); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// AuditService exposes the audit trail for reading.
type AuditService interface {
	// List returns entries for one entity, oldest first.
	List(ctx context.Context, entityType, entityID string) ([]AuditEntry, error)
}

type auditService struct {
	pool *pgxpool.Pool
}

func NewAuditService(pool *pgxpool.Pool) AuditService {
	return &auditService{pool: pool}
}

func (s *auditService) List(ctx context.Context, entityType, entityID string) ([]AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, actor_user_id, entity_type, entity_id, action, before_json, after_json, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.EntityType, &e.EntityID, &e.Action, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Before = before
		e.After = after
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
