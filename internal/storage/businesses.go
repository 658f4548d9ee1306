package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwellhq/bookwell/internal/booking"
	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/model"
)

type BusinessStore struct {
	pool *db.Pool
}

var _ booking.BusinessLookup = (*BusinessStore)(nil)

func NewBusinessStore(pool *db.Pool) *BusinessStore {
	return &BusinessStore{pool: pool}
}

const insertBusinessSQL = `
		INSERT INTO businesses (id, name, timezone, is_active)
		VALUES ($1, $2, $3, $4)`

func (s *BusinessStore) Create(ctx context.Context, b model.Business) error {
	_, err := s.pool.Exec(ctx, insertBusinessSQL, b.ID, b.Name, b.Timezone, b.IsActive)
	return err
}

func (s *BusinessStore) CreateTx(ctx context.Context, tx pgx.Tx, b model.Business) error {
	_, err := tx.Exec(ctx, insertBusinessSQL, b.ID, b.Name, b.Timezone, b.IsActive)
	return err
}

func (s *BusinessStore) FindBusiness(ctx context.Context, id string) (model.Business, bool, error) {
	var b model.Business
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, is_active, created_at
		FROM businesses
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Timezone, &b.IsActive, &b.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.Business{}, false, nil
		}
		return model.Business{}, false, err
	}
	return b, true, nil
}

func (s *BusinessStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE businesses SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

// Entitlements caps what a business may book per month, driven by billing
// events consumed from Kafka.
type Entitlements struct {
	BusinessID             string
	Tier                   string
	MaxMonthlyAppointments int
	UpdatedAt              time.Time
}

func (s *BusinessStore) UpsertEntitlements(ctx context.Context, ent Entitlements) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO business_entitlements (business_id, tier, max_monthly_appointments)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_monthly_appointments = EXCLUDED.max_monthly_appointments,
		              updated_at = now()
	`, ent.BusinessID, ent.Tier, ent.MaxMonthlyAppointments)
	return err
}

func (s *BusinessStore) GetEntitlements(ctx context.Context, businessID string) (Entitlements, bool, error) {
	var ent Entitlements
	err := s.pool.QueryRow(ctx, `
		SELECT business_id::text, tier, max_monthly_appointments, updated_at
		FROM business_entitlements
		WHERE business_id = $1
	`, businessID).Scan(&ent.BusinessID, &ent.Tier, &ent.MaxMonthlyAppointments, &ent.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return Entitlements{}, false, nil
		}
		return Entitlements{}, false, err
	}
	return ent, true, nil
}

// Begin exposes a transaction for callers that combine user and business
// writes, such as registration creating both records.
func (s *BusinessStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}
