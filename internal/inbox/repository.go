// Package inbox deduplicates consumed events so that at-least-once delivery
// from Kafka never applies the same event twice.
package inbox

import (
	"context"

	"github.com/bookwellhq/bookwell/internal/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record claims eventID and reports whether this is the first sighting.
// The primary key on event_id makes the claim atomic across replicas.
func (r *Repository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
