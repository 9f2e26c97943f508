package doctor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medconnect/telehealth/internal/platform/db"
)

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, user_id, license_number, specialization,
	consultation_fee::text, available, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var fee string
	if err := row.Scan(&p.ID, &p.UserID, &p.LicenseNumber, &p.Specialization,
		&fee, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, db.MapError(err)
	}
	d, err := decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("parse consultation_fee %q: %w", fee, err)
	}
	p.ConsultationFee = d
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_profile (id, user_id, license_number, specialization, consultation_fee, available)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.LicenseNumber, p.Specialization,
		p.ConsultationFee.StringFixed(feeDecimalPlaces), p.Available,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.MapError(err)
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM doctor_profile WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM doctor_profile WHERE user_id = $1`, userID))
}

func (r *profileRepoPG) LicenseExists(ctx context.Context, license string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doctor_profile WHERE license_number = $1)`, license).Scan(&exists)
	return exists, db.MapError(err)
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor_profile
		SET specialization = $2, consultation_fee = $3::numeric, available = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Specialization, p.ConsultationFee.StringFixed(feeDecimalPlaces), p.Available,
	).Scan(&p.UpdatedAt)
	return db.MapError(err)
}

func (r *profileRepoPG) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor_profile`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+profileCols+` FROM doctor_profile ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	defer rows.Close()
	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *profileRepoPG) LockByID(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM doctor_profile WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return db.MapError(err)
}
