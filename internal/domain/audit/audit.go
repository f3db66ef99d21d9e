package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ActionPayrollApproved    = "payroll.approved"
	ActionPayrollTransferred = "payroll.transferred"
	ActionPayrollStatus      = "payroll.status_changed"
	ActionBatchCancelled     = "payroll.batch_cancelled"

	EntityPayroll  = "payroll"
	EntityBatchRun = "batch_run"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Recorder appends to the audit trail.
type Recorder interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, details any) error
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID string, details any) error {
	var detailsJSON []byte
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			return err
		}
		detailsJSON = payload
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_id, action, entity_type, entity_id, details_json)
    VALUES ($1,$2,$3,$4,$5)
  `, actorID, action, entityType, entityID, detailsJSON)
	return err
}

// ListForEntity returns the trail of one entity, oldest first.
func (s *Service) ListForEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, actor_id, action, entity_type, entity_id, details_json, created_at
    FROM audit_events
    WHERE entity_type = $1 AND entity_id = $2
    ORDER BY created_at, id
  `, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.Details, &evt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, string, string, string, string, any) error {
	return nil
}
