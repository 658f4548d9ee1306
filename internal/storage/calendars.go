package storage

import (
	"context"

	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/model"
)

type CalendarStore struct {
	pool *db.Pool
}

var _ booking.CalendarLookup = (*CalendarStore)(nil)

func NewCalendarStore(pool *db.Pool) *CalendarStore {
	return &CalendarStore{pool: pool}
}

func (s *CalendarStore) Create(ctx context.Context, cal model.Calendar) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendars (id, business_id, location_id, name, is_active)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5)
	`, cal.ID, cal.BusinessID, cal.LocationID, cal.Name, cal.IsActive)
	return err
}

func (s *CalendarStore) FindCalendar(ctx context.Context, id string) (model.Calendar, bool, error) {
	var cal model.Calendar
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, COALESCE(location_id::text, ''), name, is_active, created_at
		FROM calendars
		WHERE id = $1
	`, id).Scan(&cal.ID, &cal.BusinessID, &cal.LocationID, &cal.Name, &cal.IsActive, &cal.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Calendar{}, false, nil
		}
		return model.Calendar{}, false, err
	}
	return cal, true, nil
}

func (s *CalendarStore) ListByBusiness(ctx context.Context, businessID string) ([]model.Calendar, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, business_id::text, COALESCE(location_id::text, ''), name, is_active, created_at
		FROM calendars
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calendars []model.Calendar
	for rows.Next() {
		var cal model.Calendar
		if err := rows.Scan(&cal.ID, &cal.BusinessID, &cal.LocationID, &cal.Name, &cal.IsActive, &cal.CreatedAt); err != nil {
			return nil, err
		}
		calendars = append(calendars, cal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return calendars, nil
}

func (s *CalendarStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE calendars SET is_active = $2 WHERE id = $1`, id, active)
	return err
}
