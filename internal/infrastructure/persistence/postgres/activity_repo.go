package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/palms-core/internal/domain/activity"
	"github.com/alem-hub/palms-core/internal/domain/shared"
)

// ActivityRepository implements activity.Log using PostgreSQL.
type ActivityRepository struct {
	q Querier
}

var _ activity.Log = (*ActivityRepository)(nil)

// Post appends an entry. The id is generated when empty.
func (r *ActivityRepository) Post(ctx context.Context, e *activity.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO activity_entries (id, entity_kind, entity_id, author_user_id, author_name, subtype, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.EntityKind), e.EntityID, e.Author.UserID, e.Author.Name,
		string(e.Subtype), e.Body, e.CreatedAt,
	)
	return mapError("activity", "Post", e.ID, err)
}

// List returns entries of one record, oldest first.
func (r *ActivityRepository) List(ctx context.Context, kind activity.EntityKind, entityID string, page shared.Pagination) ([]*activity.Entry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, entity_kind, entity_id, author_user_id, author_name, subtype, body, created_at
		FROM activity_entries
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY seq`+pageClause(page), string(kind), entityID)
	if err != nil {
		return nil, mapError("activity", "List", entityID, err)
	}
	defer rows.Close()

	var out []*activity.Entry
	for rows.Next() {
		var (
			e           activity.Entry
			ek, subtype string
		)
		if err := rows.Scan(&e.ID, &ek, &e.EntityID, &e.Author.UserID, &e.Author.Name, &subtype, &e.Body, &e.CreatedAt); err != nil {
			return nil, mapError("activity", "List", entityID, err)
		}
		e.EntityKind = activity.EntityKind(ek)
		e.Subtype = activity.Subtype(subtype)
		out = append(out, &e)
	}
	return out, rows.Err()
}
