package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	LicenseExists(ctx context.Context, license string) (bool, error)
	Update(ctx context.Context, p *Profile) error
	List(ctx context.Context, limit, offset int) ([]*Profile, int, error)
	// LockByID takes a row lock on the profile for the rest of the enclosing
	// transaction. Scheduling mutations serialize on it.
	LockByID(ctx context.Context, id uuid.UUID) error
}
