package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/telehealth/internal/platform/db"
)

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const availabilityCols = `a.id, a.doctor_id, d.user_id, a.day, a.start_time, a.end_time, a.created_at, a.updated_at`

const availabilityFrom = ` FROM availability a JOIN doctor_profile d ON d.id = a.doctor_id`

func timeParam(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	var day time.Time
	var start, end pgtype.Time
	if err := row.Scan(&a.ID, &a.DoctorID, &a.DoctorUserID, &day, &start, &end, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, db.MapError(err)
	}
	a.Day = DateOf(day)
	a.StartTime = fromPGTime(start)
	a.EndTime = fromPGTime(end)
	return &a, nil
}

func collectAvailability(rows pgx.Rows) ([]*Availability, error) {
	defer rows.Close()
	var items []*Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, db.MapError(rows.Err())
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, day, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.Day.Time(), timeParam(a.StartTime), timeParam(a.EndTime),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.MapError(err)
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return scanAvailability(r.conn(ctx).QueryRow(ctx,
		`SELECT `+availabilityCols+availabilityFrom+` WHERE a.id = $1`, id))
}

func (r *availabilityRepoPG) Update(ctx context.Context, a *Availability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availability SET day = $2, start_time = $3, end_time = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Day.Time(), timeParam(a.StartTime), timeParam(a.EndTime),
	).Scan(&a.UpdatedAt)
	return db.MapError(err)
}

func (r *availabilityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *availabilityRepoPG) ListByDoctorAndDay(ctx context.Context, doctorID uuid.UUID, day Date) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+availabilityCols+availabilityFrom+`
		WHERE a.doctor_id = $1 AND a.day = $2 ORDER BY a.start_time`, doctorID, day.Time())
	if err != nil {
		return nil, db.MapError(err)
	}
	return collectAvailability(rows)
}

func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Availability, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM availability WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+availabilityCols+availabilityFrom+`
		WHERE a.doctor_id = $1 ORDER BY a.day, a.start_time LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	items, err := collectAvailability(rows)
	return items, total, err
}

func (r *availabilityRepoPG) List(ctx context.Context, limit, offset int) ([]*Availability, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM availability`).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+availabilityCols+availabilityFrom+`
		ORDER BY a.day, a.start_time, a.doctor_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	items, err := collectAvailability(rows)
	return items, total, err
}

// =========== Teleconsultation Repository ===========

type teleconsultRepoPG struct{ pool *pgxpool.Pool }

func NewTeleconsultationRepoPG(pool *pgxpool.Pool) TeleconsultationRepository {
	return &teleconsultRepoPG{pool: pool}
}

func (r *teleconsultRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const teleconsultCols = `t.id, t.patient_id, t.doctor_id, d.user_id, t.scheduled_time, t.duration,
	t.meeting_url, t.status, t.created_at, t.updated_at`

const teleconsultFrom = ` FROM teleconsultation t JOIN doctor_profile d ON d.id = t.doctor_id`

func scanTeleconsult(row pgx.Row) (*Teleconsultation, error) {
	var tc Teleconsultation
	var status string
	if err := row.Scan(&tc.ID, &tc.PatientID, &tc.DoctorID, &tc.DoctorUserID, &tc.ScheduledTime,
		&tc.Duration, &tc.MeetingURL, &status, &tc.CreatedAt, &tc.UpdatedAt); err != nil {
		return nil, db.MapError(err)
	}
	tc.Status = Status(status)
	return &tc, nil
}

func collectTeleconsults(rows pgx.Rows) ([]*Teleconsultation, error) {
	defer rows.Close()
	var items []*Teleconsultation
	for rows.Next() {
		tc, err := scanTeleconsult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tc)
	}
	return items, db.MapError(rows.Err())
}

func (r *teleconsultRepoPG) Create(ctx context.Context, tc *Teleconsultation) error {
	tc.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO teleconsultation (id, patient_id, doctor_id, scheduled_time, duration, meeting_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		tc.ID, tc.PatientID, tc.DoctorID, tc.ScheduledTime, tc.Duration, tc.MeetingURL, string(tc.Status),
	).Scan(&tc.CreatedAt, &tc.UpdatedAt)
	return db.MapError(err)
}

func (r *teleconsultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Teleconsultation, error) {
	return scanTeleconsult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+teleconsultCols+teleconsultFrom+` WHERE t.id = $1`, id))
}

func (r *teleconsultRepoPG) Update(ctx context.Context, tc *Teleconsultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE teleconsultation
		SET scheduled_time = $2, duration = $3, meeting_url = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		tc.ID, tc.ScheduledTime, tc.Duration, tc.MeetingURL, string(tc.Status),
	).Scan(&tc.UpdatedAt)
	return db.MapError(err)
}

func (r *teleconsultRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM teleconsultation WHERE id = $1`, id)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *teleconsultRepoPG) FindByPatientDoctorTime(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time) (*Teleconsultation, error) {
	return scanTeleconsult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+teleconsultCols+teleconsultFrom+`
		WHERE t.patient_id = $1 AND t.doctor_id = $2 AND t.scheduled_time = $3`, patientID, doctorID, at))
}

func (r *teleconsultRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error) {
	return r.list(ctx, `t.doctor_id = $1`, doctorID, limit, offset)
}

func (r *teleconsultRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error) {
	return r.list(ctx, `t.patient_id = $1`, patientID, limit, offset)
}

func (r *teleconsultRepoPG) list(ctx context.Context, where string, arg uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM teleconsultation t WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, db.MapError(err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+teleconsultCols+teleconsultFrom+` WHERE `+where+`
		ORDER BY t.scheduled_time, t.id LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err)
	}
	items, err := collectTeleconsults(rows)
	return items, total, err
}
