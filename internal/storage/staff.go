package storage

import (
	"context"

	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/model"
)

type StaffStore struct {
	pool *db.Pool
}

func NewStaffStore(pool *db.Pool) *StaffStore {
	return &StaffStore{pool: pool}
}

func (s *StaffStore) Create(ctx context.Context, st model.Staff) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staff (id, business_id, location_id, name, is_active)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5)
	`, st.ID, st.BusinessID, st.LocationID, st.Name, st.IsActive)
	return err
}

func (s *StaffStore) FindStaff(ctx context.Context, id string) (model.Staff, bool, error) {
	var st model.Staff
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, COALESCE(location_id::text, ''), name, is_active, created_at
		FROM staff
		WHERE id = $1
	`, id).Scan(&st.ID, &st.BusinessID, &st.LocationID, &st.Name, &st.IsActive, &st.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Staff{}, false, nil
		}
		return model.Staff{}, false, err
	}
	return st, true, nil
}

func (s *StaffStore) ListByBusiness(ctx context.Context, businessID string) ([]model.Staff, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, business_id::text, COALESCE(location_id::text, ''), name, is_active, created_at
		FROM staff
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.Staff
	for rows.Next() {
		var st model.Staff
		if err := rows.Scan(&st.ID, &st.BusinessID, &st.LocationID, &st.Name, &st.IsActive, &st.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return members, nil
}
