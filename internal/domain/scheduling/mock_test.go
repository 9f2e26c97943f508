package scheduling

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medconnect/telehealth/internal/domain/doctor"
	"github.com/medconnect/telehealth/internal/platform/db"
	"github.com/medconnect/telehealth/pkg/apperrors"
)

// -- Mock Repositories --

type mockDoctors struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*doctor.Profile
	locks    int
}

func newMockDoctors() *mockDoctors {
	return &mockDoctors{profiles: make(map[uuid.UUID]*doctor.Profile)}
}

func (m *mockDoctors) add(userID uuid.UUID, available bool) *doctor.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &doctor.Profile{ID: uuid.New(), UserID: userID, LicenseNumber: userID.String(), Available: available}
	m.profiles[p.ID] = p
	return p
}

func (m *mockDoctors) GetByID(_ context.Context, id uuid.UUID) (*doctor.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockDoctors) GetByUserID(_ context.Context, userID uuid.UUID) (*doctor.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDoctors) LockByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return apperrors.ErrNotFound
	}
	m.locks++
	return nil
}

type mockSlotRepo struct {
	mu      sync.Mutex
	doctors *mockDoctors
	slots   map[uuid.UUID]*Availability
	// enforceExclusion mimics the storage exclusion constraint.
	enforceExclusion bool
}

func newMockSlotRepo(doctors *mockDoctors) *mockSlotRepo {
	return &mockSlotRepo{doctors: doctors, slots: make(map[uuid.UUID]*Availability)}
}

func (m *mockSlotRepo) userOf(doctorID uuid.UUID) uuid.UUID {
	p, err := m.doctors.GetByID(context.Background(), doctorID)
	if err != nil {
		return uuid.Nil
	}
	return p.UserID
}

func (m *mockSlotRepo) conflicts(a *Availability) bool {
	for _, other := range m.slots {
		if other.ID != a.ID && other.DoctorID == a.DoctorID && other.Day == a.Day && Overlaps(other.Range(), a.Range()) {
			return true
		}
	}
	return false
}

func (m *mockSlotRepo) Create(_ context.Context, a *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enforceExclusion && m.conflicts(a) {
		return db.MapError(&pgconn.PgError{Code: "23P01", ConstraintName: "availability_no_overlap"})
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.slots[a.ID] = &cp
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.slots[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	cp.DoctorUserID = m.userOf(a.DoctorID)
	return &cp, nil
}

func (m *mockSlotRepo) Update(_ context.Context, a *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[a.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if m.enforceExclusion && m.conflicts(a) {
		return db.MapError(&pgconn.PgError{Code: "23P01", ConstraintName: "availability_no_overlap"})
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.slots[a.ID] = &cp
	return nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *mockSlotRepo) sorted(keep func(*Availability) bool) []*Availability {
	var out []*Availability
	for _, a := range m.slots {
		if keep(a) {
			cp := *a
			cp.DoctorUserID = m.userOf(a.DoctorID)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func page[T any](items []T, limit, offset int) ([]T, int) {
	total := len(items)
	if offset >= total {
		return []T{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total
}

func (m *mockSlotRepo) ListByDoctorAndDay(_ context.Context, doctorID uuid.UUID, day Date) ([]*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(a *Availability) bool { return a.DoctorID == doctorID && a.Day == day }), nil
}

func (m *mockSlotRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Availability, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, total := page(m.sorted(func(a *Availability) bool { return a.DoctorID == doctorID }), limit, offset)
	return items, total, nil
}

func (m *mockSlotRepo) List(_ context.Context, limit, offset int) ([]*Availability, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, total := page(m.sorted(func(*Availability) bool { return true }), limit, offset)
	return items, total, nil
}

type mockConsultRepo struct {
	mu       sync.Mutex
	doctors  *mockDoctors
	consults map[uuid.UUID]*Teleconsultation
	// skipLookup makes FindByPatientDoctorTime miss so only the unique
	// constraint guards duplicates.
	skipLookup bool
}

func newMockConsultRepo(doctors *mockDoctors) *mockConsultRepo {
	return &mockConsultRepo{doctors: doctors, consults: make(map[uuid.UUID]*Teleconsultation)}
}

func (m *mockConsultRepo) withUser(tc *Teleconsultation) *Teleconsultation {
	cp := *tc
	if p, err := m.doctors.GetByID(context.Background(), tc.DoctorID); err == nil {
		cp.DoctorUserID = p.UserID
	}
	return &cp
}

func (m *mockConsultRepo) violatesUnique(tc *Teleconsultation) bool {
	for _, other := range m.consults {
		if other.ID != tc.ID && other.PatientID == tc.PatientID && other.DoctorID == tc.DoctorID &&
			other.ScheduledTime.Equal(tc.ScheduledTime) {
			return true
		}
	}
	return false
}

func (m *mockConsultRepo) Create(_ context.Context, tc *Teleconsultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violatesUnique(tc) {
		return db.MapError(&pgconn.PgError{Code: "23505", ConstraintName: "teleconsultation_booking_key"})
	}
	tc.ID = uuid.New()
	tc.CreatedAt = time.Now()
	tc.UpdatedAt = tc.CreatedAt
	cp := *tc
	m.consults[tc.ID] = &cp
	return nil
}

func (m *mockConsultRepo) GetByID(_ context.Context, id uuid.UUID) (*Teleconsultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.consults[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return m.withUser(tc), nil
}

func (m *mockConsultRepo) Update(_ context.Context, tc *Teleconsultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consults[tc.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if m.violatesUnique(tc) {
		return db.MapError(&pgconn.PgError{Code: "23505", ConstraintName: "teleconsultation_booking_key"})
	}
	tc.UpdatedAt = time.Now()
	cp := *tc
	m.consults[tc.ID] = &cp
	return nil
}

func (m *mockConsultRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consults[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.consults, id)
	return nil
}

func (m *mockConsultRepo) FindByPatientDoctorTime(_ context.Context, patientID, doctorID uuid.UUID, at time.Time) (*Teleconsultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipLookup {
		return nil, apperrors.ErrNotFound
	}
	for _, tc := range m.consults {
		if tc.PatientID == patientID && tc.DoctorID == doctorID && tc.ScheduledTime.Equal(at) {
			return m.withUser(tc), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConsultRepo) list(keep func(*Teleconsultation) bool, limit, offset int) ([]*Teleconsultation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Teleconsultation
	for _, tc := range m.consults {
		if keep(tc) {
			out = append(out, m.withUser(tc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	items, total := page(out, limit, offset)
	return items, total, nil
}

func (m *mockConsultRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error) {
	return m.list(func(tc *Teleconsultation) bool { return tc.DoctorID == doctorID }, limit, offset)
}

func (m *mockConsultRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error) {
	return m.list(func(tc *Teleconsultation) bool { return tc.PatientID == patientID }, limit, offset)
}

// passthroughTx runs fn directly. It provides no isolation, so concurrent
// tests exercise the storage constraints rather than the lock.
type passthroughTx struct{ calls atomic.Int64 }

func (p *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls.Add(1)
	return fn(ctx)
}

// serialTx serializes transactions the way the doctor row lock does.
type serialTx struct{ mu sync.Mutex }

func (s *serialTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}
