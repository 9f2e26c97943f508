package doctor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medconnect/telehealth/internal/platform/db"
	"github.com/medconnect/telehealth/pkg/apperrors"
)

type mockRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*Profile
	// skipPrecheck makes LicenseExists report false so the unique index path runs.
	skipPrecheck bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *mockRepo) Create(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing.LicenseNumber == p.LicenseNumber {
			return db.MapError(&pgconn.PgError{Code: "23505", ConstraintName: constraintLicense})
		}
		if existing.UserID == p.UserID {
			return db.MapError(&pgconn.PgError{Code: "23505", ConstraintName: constraintUser})
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Profile, error) {
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

func (m *mockRepo) LicenseExists(_ context.Context, license string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipPrecheck {
		return false, nil
	}
	for _, p := range m.profiles {
		if p.LicenseNumber == license {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Update(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		return apperrors.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Profile, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LicenseNumber < all[j].LicenseNumber })
	total := len(all)
	if offset >= total {
		return []*Profile{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) LockByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return apperrors.ErrNotFound
	}
	return nil
}
