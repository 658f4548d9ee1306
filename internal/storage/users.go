package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bookwellhq/bookwell/internal/db"
	"github.com/bookwellhq/bookwell/internal/outbox"
	"github.com/bookwellhq/bookwell/internal/rbac"
)

type User struct {
	ID           string
	BusinessID   string
	LocationID   string
	DepartmentID string
	Role         rbac.Role
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

type UserStore struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

var _ rbac.UserLookup = (*UserStore)(nil)

func NewUserStore(pool *db.Pool, outboxRepo *outbox.Repository) *UserStore {
	return &UserStore{pool: pool, outboxRepo: outboxRepo}
}

const userColumns = `id::text, COALESCE(business_id::text, ''), COALESCE(location_id::text, ''),
		COALESCE(department_id::text, ''), role, email, name, COALESCE(phone, ''), password_hash, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.BusinessID, &u.LocationID, &u.DepartmentID, &u.Role,
		&u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	return u, err
}

const insertUserSQL = `
		INSERT INTO users (id, business_id, location_id, department_id, role, email, name, phone, password_hash, is_active)
		VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, NULLIF($8, ''), $9, $10)`

func (s *UserStore) Create(ctx context.Context, u User) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.CreateTx(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateTx inserts the user and its created event inside the caller's
// transaction, so registration commits or rolls back as one unit.
func (s *UserStore) CreateTx(ctx context.Context, tx pgx.Tx, u User) error {
	_, err := tx.Exec(ctx, insertUserSQL,
		u.ID, u.BusinessID, u.LocationID, u.DepartmentID, u.Role, u.Email, u.Name, u.Phone, u.PasswordHash, u.IsActive)
	if err != nil {
		return err
	}
	return s.insertUserEvent(ctx, tx, u, outbox.EventUserCreated)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (User, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if IsNotFound(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (User, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if IsNotFound(err) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

// FindActor loads the identity fields the permission evaluator needs.
func (s *UserStore) FindActor(ctx context.Context, id string) (rbac.Actor, bool, error) {
	u, ok, err := s.GetByID(ctx, id)
	if err != nil || !ok {
		return rbac.Actor{}, ok, err
	}
	return rbac.Actor{
		ID:           u.ID,
		Role:         u.Role,
		BusinessID:   u.BusinessID,
		LocationID:   u.LocationID,
		DepartmentID: u.DepartmentID,
	}, true, nil
}

// Search lists users under the constraints the permission evaluator handed
// back for the caller. SelfOnly filters are resolved by the caller via
// GetByID and never reach here.
func (s *UserStore) Search(ctx context.Context, filter rbac.ScopeFilter, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.BusinessID != "" {
		where = append(where, "business_id = "+arg(filter.BusinessID))
	}
	if filter.LocationID != "" {
		where = append(where, "location_id = "+arg(filter.LocationID))
	}
	if filter.ExcludeUserID != "" {
		where = append(where, "id <> "+arg(filter.ExcludeUserID))
	}
	if len(filter.ExcludeRoles) > 0 {
		roles := make([]string, 0, len(filter.ExcludeRoles))
		for _, r := range filter.ExcludeRoles {
			roles = append(roles, string(r))
		}
		where = append(where, "role <> ALL("+arg(roles)+")")
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

// UpdateProfile changes the self-updatable fields. Empty values keep the
// stored ones.
func (s *UserStore) UpdateProfile(ctx context.Context, id, name, email, phone string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET name = COALESCE(NULLIF($2, ''), name),
			email = COALESCE(NULLIF($3, ''), email),
			phone = COALESCE(NULLIF($4, ''), phone)
		WHERE id = $1
	`, id, name, email, phone)
	return err
}

func (s *UserStore) SetRole(ctx context.Context, id string, role rbac.Role) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	return err
}

func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	return err
}

func (s *UserStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id)
	u, err := scanUser(row)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.insertUserEvent(ctx, tx, u, outbox.EventUserDeleted); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *UserStore) insertUserEvent(ctx context.Context, tx pgx.Tx, u User, eventType string) error {
	payload, err := json.Marshal(map[string]string{
		"user_id":     u.ID,
		"business_id": u.BusinessID,
		"role":        string(u.Role),
		"email":       u.Email,
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   u.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
