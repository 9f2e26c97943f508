package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medconnect/telehealth/internal/domain/doctor"
)

type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	Update(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctorAndDay returns every slot of the doctor on day, unpaginated.
	ListByDoctorAndDay(ctx context.Context, doctorID uuid.UUID, day Date) ([]*Availability, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Availability, int, error)
	List(ctx context.Context, limit, offset int) ([]*Availability, int, error)
}

type TeleconsultationRepository interface {
	Create(ctx context.Context, tc *Teleconsultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Teleconsultation, error)
	Update(ctx context.Context, tc *Teleconsultation) error
	Delete(ctx context.Context, id uuid.UUID) error
	// FindByPatientDoctorTime returns ErrNotFound when no booking holds the triple.
	FindByPatientDoctorTime(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time) (*Teleconsultation, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Teleconsultation, int, error)
}

// DoctorLookup is the part of the doctor profile store the scheduler reads.
type DoctorLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*doctor.Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*doctor.Profile, error)
	LockByID(ctx context.Context, id uuid.UUID) error
}

// Transactor runs fn in one database transaction. *db.TxManager implements it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
