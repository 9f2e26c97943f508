package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medconnect/telehealth/internal/platform/auth"
	"github.com/medconnect/telehealth/internal/platform/db"
	"github.com/medconnect/telehealth/internal/platform/events"
	"github.com/medconnect/telehealth/pkg/apperrors"
)

const (
	constraintLicense = "doctor_profile_license_number_key"
	constraintUser    = "doctor_profile_user_id_key"
)

var maxFee = decimal.New(1, maxFeeDigits-feeDecimalPlaces)

type Service struct {
	profiles  Repository
	publisher events.Publisher
	logger    zerolog.Logger
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(profiles Repository, opts ...Option) *Service {
	s := &Service{profiles: profiles, publisher: events.NopPublisher{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the caller's doctor profile.
func (s *Service) Register(ctx context.Context, id auth.Identity, in RegisterInput) (*Profile, error) {
	if id.Role != auth.RoleDoctor {
		return nil, apperrors.PermissionDenied()
	}

	license := strings.TrimSpace(in.LicenseNumber)
	specialization := strings.TrimSpace(in.Specialization)
	switch {
	case license == "":
		return nil, apperrors.Required("license_number")
	case len(license) > maxLicenseLen:
		return nil, apperrors.New(apperrors.KindInvalidValue, "license_number",
			fmt.Sprintf("Ensure this field has no more than %d characters.", maxLicenseLen))
	case specialization == "":
		return nil, apperrors.Required("specialization")
	case in.ConsultationFee == nil:
		return nil, apperrors.Required("consultation_fee")
	}
	if err := validateSpecialization(specialization); err != nil {
		return nil, err
	}
	if err := validateFee(*in.ConsultationFee); err != nil {
		return nil, err
	}

	if _, err := s.profiles.GetByUserID(ctx, id.UserID); err == nil {
		return nil, apperrors.New(apperrors.KindInvalidValue, "", "A doctor profile already exists for this user.")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("look up profile for %s: %w", id.UserID, err)
	}

	exists, err := s.profiles.LicenseExists(ctx, license)
	if err != nil {
		return nil, fmt.Errorf("check license number: %w", err)
	}
	if exists {
		return nil, duplicateLicense(nil)
	}

	p := &Profile{
		UserID:          id.UserID,
		LicenseNumber:   license,
		Specialization:  specialization,
		ConsultationFee: in.ConsultationFee.Round(feeDecimalPlaces),
		Available:       true,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, db.ErrUniqueViolation) {
			if db.ConstraintName(err) == constraintUser {
				return nil, apperrors.Wrap(apperrors.KindInvalidValue, "", "A doctor profile already exists for this user.", err)
			}
			return nil, duplicateLicense(err)
		}
		return nil, fmt.Errorf("create doctor profile: %w", err)
	}

	s.publish(ctx, events.DoctorRegistered, id.UserID, p)
	return p, nil
}

func (s *Service) GetMe(ctx context.Context, id auth.Identity) (*Profile, error) {
	return s.profiles.GetByUserID(ctx, id.UserID)
}

func (s *Service) UpdateMe(ctx context.Context, id auth.Identity, patch ProfilePatch) (*Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	return s.applyPatch(ctx, p, patch)
}

// List returns every profile to an admin and only the caller's own otherwise.
func (s *Service) List(ctx context.Context, id auth.Identity, limit, offset int) ([]*Profile, int, error) {
	if id.IsAdmin() {
		return s.profiles.List(ctx, limit, offset)
	}
	p, err := s.profiles.GetByUserID(ctx, id.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return []*Profile{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if offset > 0 {
		return []*Profile{}, 1, nil
	}
	return []*Profile{p}, 1, nil
}

// GetByUserID hides other doctors' profiles from non-admins as not found.
func (s *Service) GetByUserID(ctx context.Context, id auth.Identity, userID uuid.UUID) (*Profile, error) {
	if !id.IsAdmin() && id.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return s.profiles.GetByUserID(ctx, userID)
}

func (s *Service) UpdateByUserID(ctx context.Context, id auth.Identity, userID uuid.UUID, patch ProfilePatch) (*Profile, error) {
	p, err := s.GetByUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.applyPatch(ctx, p, patch)
}

func (s *Service) applyPatch(ctx context.Context, p *Profile, patch ProfilePatch) (*Profile, error) {
	updated := *p
	if patch.Specialization != nil {
		spec := strings.TrimSpace(*patch.Specialization)
		if err := validateSpecialization(spec); err != nil {
			return nil, err
		}
		updated.Specialization = spec
	}
	if patch.ConsultationFee != nil {
		if err := validateFee(*patch.ConsultationFee); err != nil {
			return nil, err
		}
		updated.ConsultationFee = patch.ConsultationFee.Round(feeDecimalPlaces)
	}
	if patch.Available != nil {
		updated.Available = *patch.Available
	}
	if err := s.profiles.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update doctor profile %s: %w", p.ID, err)
	}
	return &updated, nil
}

func (s *Service) publish(ctx context.Context, eventType string, actor uuid.UUID, payload any) {
	ev, err := events.New(eventType, actor, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func validateSpecialization(spec string) error {
	if len(spec) > maxSpecializationLen {
		return apperrors.New(apperrors.KindInvalidValue, "specialization",
			fmt.Sprintf("Ensure this field has no more than %d characters.", maxSpecializationLen))
	}
	return nil
}

func validateFee(fee decimal.Decimal) error {
	switch {
	case fee.IsNegative():
		return apperrors.New(apperrors.KindInvalidValue, "consultation_fee", "Ensure this value is greater than or equal to 0.")
	case fee.Exponent() < -feeDecimalPlaces && !fee.Equal(fee.Round(feeDecimalPlaces)):
		return apperrors.New(apperrors.KindInvalidValue, "consultation_fee",
			fmt.Sprintf("Ensure that there are no more than %d decimal places.", feeDecimalPlaces))
	case fee.GreaterThanOrEqual(maxFee):
		return apperrors.New(apperrors.KindInvalidValue, "consultation_fee",
			fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxFeeDigits))
	}
	return nil
}

func duplicateLicense(err error) error {
	return apperrors.Wrap(apperrors.KindDuplicateLicense, "license_number",
		"A doctor with this license number already exists.", err)
}
