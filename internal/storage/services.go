package storage

import (
	"context"

	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/model"
)

type ServiceStore struct {
	pool *db.Pool
}

var _ booking.ServiceLookup = (*ServiceStore)(nil)

func NewServiceStore(pool *db.Pool) *ServiceStore {
	return &ServiceStore{pool: pool}
}

func (s *ServiceStore) Create(ctx context.Context, svc model.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (id, business_id, name, duration_mins, price_cents, currency, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, svc.ID, svc.BusinessID, svc.Name, svc.DurationMins, svc.Price.AmountCents, svc.Price.Currency, svc.Description, svc.IsActive)
	return err
}

func (s *ServiceStore) FindService(ctx context.Context, id string) (model.Service, bool, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_mins, price_cents, currency, COALESCE(description, ''), is_active, created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMins,
		&svc.Price.AmountCents, &svc.Price.Currency, &svc.Description, &svc.IsActive, &svc.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Service{}, false, nil
		}
		return model.Service{}, false, err
	}
	return svc, true, nil
}

func (s *ServiceStore) ListByBusiness(ctx context.Context, businessID string) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, duration_mins, price_cents, currency, COALESCE(description, ''), is_active, created_at
		FROM services
		WHERE business_id = $1
		ORDER BY name
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMins,
			&svc.Price.AmountCents, &svc.Price.Currency, &svc.Description, &svc.IsActive, &svc.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

func (s *ServiceStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE services SET is_active = $2 WHERE id = $1`, id, active)
	return err
}
