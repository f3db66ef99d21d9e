package compensation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps structures as JSON documents with their window columns indexed.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) ListStructures(ctx context.Context) ([]Structure, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, document, created_at
    FROM compensation_structures
    ORDER BY created_at DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Structure
	for rows.Next() {
		var id string
		var doc []byte
		var createdAt time.Time
		if err := rows.Scan(&id, &doc, &createdAt); err != nil {
			return nil, err
		}
		var st Structure
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, err
		}
		st.ID = id
		st.CreatedAt = createdAt
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, st Structure) (string, error) {
	if err := Validate(st); err != nil {
		return "", err
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO compensation_structures (id, name, scope, priority, effective_from, effective_to, document, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, st.ID, st.Name, string(st.Applicability.Scope), st.Priority, st.EffectiveFrom, st.EffectiveTo, doc, st.CreatedAt)
	if err != nil {
		return "", err
	}
	return st.ID, nil
}
