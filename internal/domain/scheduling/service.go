package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/telehealth/internal/domain/doctor"
	"github.com/medconnect/telehealth/internal/platform/auth"
	"github.com/medconnect/telehealth/internal/platform/db"
	"github.com/medconnect/telehealth/internal/platform/events"
	"github.com/medconnect/telehealth/pkg/apperrors"
)

const maxMeetingURLLen = 200

const (
	msgPastDate          = "Availability day cannot be in the past"
	msgInvalidRange      = "End time must be after start time"
	msgOverlap           = "This slot overlaps with existing availability"
	msgDoctorUnavailable = "Doctor is not available for consultations"
	msgPastSchedule      = "Scheduled time cannot be in the past."
	msgDuplicateBooking  = "You already have a consultation with this doctor at this time."
)

var msgInvalidDuration = fmt.Sprintf("Duration must be between %d and %d minutes.", MinDurationMinutes, MaxDurationMinutes)

type Service struct {
	slots     AvailabilityRepository
	consults  TeleconsultationRepository
	doctors   DoctorLookup
	tx        Transactor
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone in which "today" is evaluated for slot days.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(slots AvailabilityRepository, consults TeleconsultationRepository, doctors DoctorLookup, tx Transactor, opts ...Option) *Service {
	s := &Service{
		slots:     slots,
		consults:  consults,
		doctors:   doctors,
		tx:        tx,
		publisher: events.NopPublisher{},
		logger:    zerolog.Nop(),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() Date {
	return DateOf(s.now().In(s.loc))
}

// -- Availability --

// CreateSlot publishes a new availability slot. Doctors create on their own
// profile; admins must name the doctor.
func (s *Service) CreateSlot(ctx context.Context, id auth.Identity, in SlotInput) (*Availability, error) {
	if !id.Authenticated() {
		return nil, apperrors.PermissionDenied()
	}
	switch {
	case in.Day == nil:
		return nil, apperrors.Required("day")
	case in.StartTime == nil:
		return nil, apperrors.Required("start_time")
	case in.EndTime == nil:
		return nil, apperrors.Required("end_time")
	}

	profile, err := s.slotOwner(ctx, id, in.Doctor)
	if err != nil {
		return nil, err
	}

	slot := &Availability{
		DoctorID:     profile.ID,
		DoctorUserID: profile.UserID,
		Day:          *in.Day,
		StartTime:    *in.StartTime,
		EndTime:      *in.EndTime,
	}
	if err := s.checkSlotFields(slot); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockDoctor(ctx, slot.DoctorID, "doctor"); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, slot); err != nil {
			return err
		}
		if err := s.slots.Create(ctx, slot); err != nil {
			return mapSlotWriteError("create availability", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AvailabilityCreated, id.UserID, slot)
	return slot, nil
}

// slotOwner resolves the doctor a new slot belongs to.
func (s *Service) slotOwner(ctx context.Context, id auth.Identity, requested *uuid.UUID) (*doctor.Profile, error) {
	own, err := s.doctors.GetByUserID(ctx, id.UserID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("look up doctor profile for %s: %w", id.UserID, err)
	}

	switch {
	case requested != nil && own != nil && *requested == own.ID:
		return own, nil
	case requested != nil && id.IsAdmin():
		p, err := s.doctors.GetByID(ctx, *requested)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, invalidReference("doctor", *requested)
		}
		if err != nil {
			return nil, fmt.Errorf("look up doctor %s: %w", *requested, err)
		}
		return p, nil
	case requested != nil:
		return nil, apperrors.PermissionDenied()
	case own != nil:
		return own, nil
	case id.IsAdmin():
		return nil, apperrors.Required("doctor")
	default:
		return nil, apperrors.PermissionDenied()
	}
}

// UpdateSlot merges patch over the stored slot and re-validates the merged
// record against its siblings, excluding itself.
func (s *Service) UpdateSlot(ctx context.Context, id auth.Identity, slotID uuid.UUID, patch SlotPatch) (*Availability, error) {
	existing, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !CanWriteSlot(id, existing) {
		return nil, apperrors.PermissionDenied()
	}

	var updated *Availability
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockDoctor(ctx, existing.DoctorID, "doctor"); err != nil {
			return err
		}
		current, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		merged := *current
		if patch.Day != nil {
			merged.Day = *patch.Day
		}
		if patch.StartTime != nil {
			merged.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			merged.EndTime = *patch.EndTime
		}
		if err := s.checkSlotFields(&merged); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, &merged); err != nil {
			return err
		}
		if err := s.slots.Update(ctx, &merged); err != nil {
			return mapSlotWriteError("update availability", err)
		}
		updated = &merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AvailabilityUpdated, id.UserID, updated)
	return updated, nil
}

func (s *Service) GetSlot(ctx context.Context, id auth.Identity, slotID uuid.UUID) (*Availability, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !CanReadSlot(id, slot) {
		return nil, apperrors.PermissionDenied()
	}
	return slot, nil
}

// ListSlots: admins see every slot, doctors their own ordered by day and start
// time, everyone else nothing.
func (s *Service) ListSlots(ctx context.Context, id auth.Identity, limit, offset int) ([]*Availability, int, error) {
	if id.IsAdmin() {
		return s.slots.List(ctx, limit, offset)
	}
	own, err := s.doctors.GetByUserID(ctx, id.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return []*Availability{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("look up doctor profile for %s: %w", id.UserID, err)
	}
	return s.slots.ListByDoctor(ctx, own.ID, limit, offset)
}

func (s *Service) DeleteSlot(ctx context.Context, id auth.Identity, slotID uuid.UUID) error {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if !CanWriteSlot(id, slot) {
		return apperrors.PermissionDenied()
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockDoctor(ctx, slot.DoctorID, "doctor"); err != nil {
			return err
		}
		return s.slots.Delete(ctx, slotID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.AvailabilityDeleted, id.UserID, slot)
	return nil
}

func (s *Service) checkSlotFields(slot *Availability) error {
	if slot.Day.Before(s.today()) {
		return apperrors.New(apperrors.KindPastDate, "day", msgPastDate)
	}
	if !slot.Range().Valid() {
		return apperrors.New(apperrors.KindInvalidRange, "time_range", msgInvalidRange)
	}
	return nil
}

// checkOverlap compares slot against the other slots of its doctor and day.
// Callers hold the doctor row lock.
func (s *Service) checkOverlap(ctx context.Context, slot *Availability) error {
	siblings, err := s.slots.ListByDoctorAndDay(ctx, slot.DoctorID, slot.Day)
	if err != nil {
		return fmt.Errorf("list availability for %s on %s: %w", slot.DoctorID, slot.Day, err)
	}
	for _, other := range siblings {
		if other.ID == slot.ID {
			continue
		}
		if Overlaps(slot.Range(), other.Range()) {
			return apperrors.New(apperrors.KindOverlap, "overlap", msgOverlap)
		}
	}
	return nil
}

func mapSlotWriteError(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrExclusionViolation):
		return apperrors.Wrap(apperrors.KindOverlap, "overlap", msgOverlap, err)
	case errors.Is(err, db.ErrCheckViolation):
		return apperrors.Wrap(apperrors.KindInvalidRange, "time_range", msgInvalidRange, err)
	case errors.Is(err, db.ErrForeignKeyViolation):
		return apperrors.Wrap(apperrors.KindInvalidReference, "doctor", "Doctor does not exist.", err)
	case errors.Is(err, apperrors.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// -- Teleconsultation --

// CreateConsultation books the caller as patient with the given doctor.
func (s *Service) CreateConsultation(ctx context.Context, id auth.Identity, in ConsultationInput) (*Teleconsultation, error) {
	if !id.Authenticated() {
		return nil, apperrors.PermissionDenied()
	}
	switch {
	case in.DoctorID == nil:
		return nil, apperrors.Required("doctor_id")
	case in.ScheduledTime == nil:
		return nil, apperrors.Required(FieldScheduledTime)
	case in.Duration == nil:
		return nil, apperrors.Required(FieldDuration)
	case in.MeetingURL == nil:
		return nil, apperrors.Required(FieldMeetingURL)
	}

	doc, err := s.doctors.GetByID(ctx, *in.DoctorID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, invalidReference("doctor_id", *in.DoctorID)
	}
	if err != nil {
		return nil, fmt.Errorf("look up doctor %s: %w", *in.DoctorID, err)
	}
	if !doc.Available {
		return nil, apperrors.New(apperrors.KindDoctorUnavailable, "doctor_id", msgDoctorUnavailable)
	}

	tc := &Teleconsultation{
		PatientID:     id.UserID,
		DoctorID:      doc.ID,
		DoctorUserID:  doc.UserID,
		ScheduledTime: normalizeInstant(*in.ScheduledTime),
		Duration:      *in.Duration,
		MeetingURL:    strings.TrimSpace(*in.MeetingURL),
		Status:        StatusScheduled,
	}
	if err := s.checkScheduledTime(tc.ScheduledTime); err != nil {
		return nil, err
	}
	if err := checkDuration(tc.Duration); err != nil {
		return nil, err
	}
	if err := checkMeetingURL(tc.MeetingURL); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockDoctor(ctx, tc.DoctorID, "doctor_id"); err != nil {
			return err
		}
		locked, err := s.doctors.GetByID(ctx, tc.DoctorID)
		if err != nil {
			return fmt.Errorf("reload doctor %s: %w", tc.DoctorID, err)
		}
		if !locked.Available {
			return apperrors.New(apperrors.KindDoctorUnavailable, "doctor_id", msgDoctorUnavailable)
		}
		if err := s.checkDuplicate(ctx, tc); err != nil {
			return err
		}
		if err := s.consults.Create(ctx, tc); err != nil {
			return mapConsultWriteError("create teleconsultation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TeleconsultScheduled, id.UserID, tc)
	return tc, nil
}

// UpdateConsultation applies ch. A doctor on the booking sending exactly
// {status} takes the status-only path; everything else must come from the
// patient.
func (s *Service) UpdateConsultation(ctx context.Context, id auth.Identity, tcID uuid.UUID, ch ConsultationChanges) (*Teleconsultation, error) {
	existing, err := s.consults.GetByID(ctx, tcID)
	if err != nil {
		return nil, err
	}
	if !CanReadConsultation(id, existing) {
		return nil, apperrors.PermissionDenied()
	}

	doctorPath := ch.StatusOnly() && existing.DoctorUserID == id.UserID
	if doctorPath {
		if err := checkStatus(ch.Status); err != nil {
			return nil, err
		}
	}
	if !CanWriteConsultation(id, existing, ch) {
		return nil, apperrors.PermissionDenied()
	}
	if !doctorPath {
		if err := s.checkPatientChanges(ch); err != nil {
			return nil, err
		}
	}

	var updated *Teleconsultation
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockDoctor(ctx, existing.DoctorID, "doctor_id"); err != nil {
			return err
		}
		current, err := s.consults.GetByID(ctx, tcID)
		if err != nil {
			return err
		}
		next := *current
		if ch.Status != nil {
			next.Status = *ch.Status
		}
		if !doctorPath {
			if ch.ScheduledTime != nil {
				next.ScheduledTime = normalizeInstant(*ch.ScheduledTime)
			}
			if ch.Duration != nil {
				next.Duration = *ch.Duration
			}
			if ch.MeetingURL != nil {
				next.MeetingURL = strings.TrimSpace(*ch.MeetingURL)
			}
			if !next.ScheduledTime.Equal(current.ScheduledTime) {
				if err := s.checkDuplicate(ctx, &next); err != nil {
					return err
				}
			}
		}
		if err := s.consults.Update(ctx, &next); err != nil {
			return mapConsultWriteError("update teleconsultation", err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if doctorPath || ch.StatusOnly() {
		s.publish(ctx, events.TeleconsultStatusChange, id.UserID, updated)
	} else {
		s.publish(ctx, events.TeleconsultUpdated, id.UserID, updated)
	}
	return updated, nil
}

func (s *Service) GetConsultation(ctx context.Context, id auth.Identity, tcID uuid.UUID) (*Teleconsultation, error) {
	tc, err := s.consults.GetByID(ctx, tcID)
	if err != nil {
		return nil, err
	}
	if !CanReadConsultation(id, tc) {
		return nil, apperrors.PermissionDenied()
	}
	return tc, nil
}

// ListConsultations returns the bookings where a doctor-profile holder is the
// doctor, and otherwise those where the caller is the patient.
func (s *Service) ListConsultations(ctx context.Context, id auth.Identity, limit, offset int) ([]*Teleconsultation, int, error) {
	own, err := s.doctors.GetByUserID(ctx, id.UserID)
	switch {
	case err == nil:
		return s.consults.ListByDoctor(ctx, own.ID, limit, offset)
	case errors.Is(err, apperrors.ErrNotFound):
		return s.consults.ListByPatient(ctx, id.UserID, limit, offset)
	default:
		return nil, 0, fmt.Errorf("look up doctor profile for %s: %w", id.UserID, err)
	}
}

// DeleteConsultation is reserved to the patient on the booking.
func (s *Service) DeleteConsultation(ctx context.Context, id auth.Identity, tcID uuid.UUID) error {
	tc, err := s.consults.GetByID(ctx, tcID)
	if err != nil {
		return err
	}
	if !CanDeleteConsultation(id, tc) {
		return apperrors.PermissionDenied()
	}
	if err := s.consults.Delete(ctx, tcID); err != nil {
		return err
	}
	s.publish(ctx, events.TeleconsultDeleted, id.UserID, tc)
	return nil
}

func (s *Service) checkPatientChanges(ch ConsultationChanges) error {
	for key := range ch.Keys {
		if !patientWritableFields[key] {
			return apperrors.PermissionDenied()
		}
	}
	if ch.Full {
		for _, key := range []string{FieldScheduledTime, FieldDuration, FieldMeetingURL} {
			if !ch.Has(key) {
				return apperrors.Required(key)
			}
		}
	}
	if ch.Has(FieldScheduledTime) {
		if ch.ScheduledTime == nil {
			return apperrors.Required(FieldScheduledTime)
		}
		if err := s.checkScheduledTime(normalizeInstant(*ch.ScheduledTime)); err != nil {
			return err
		}
	}
	if ch.Has(FieldDuration) {
		if ch.Duration == nil {
			return apperrors.Required(FieldDuration)
		}
		if err := checkDuration(*ch.Duration); err != nil {
			return err
		}
	}
	if ch.Has(FieldMeetingURL) {
		if ch.MeetingURL == nil {
			return apperrors.Required(FieldMeetingURL)
		}
		if err := checkMeetingURL(strings.TrimSpace(*ch.MeetingURL)); err != nil {
			return err
		}
	}
	if ch.Has(FieldStatus) {
		return checkStatus(ch.Status)
	}
	return nil
}

func (s *Service) checkScheduledTime(at time.Time) error {
	if !at.After(s.now()) {
		return apperrors.New(apperrors.KindPastSchedule, FieldScheduledTime, msgPastSchedule)
	}
	return nil
}

// checkDuplicate rejects a booking whose (patient, doctor, time) triple is
// held by another booking.
func (s *Service) checkDuplicate(ctx context.Context, tc *Teleconsultation) error {
	other, err := s.consults.FindByPatientDoctorTime(ctx, tc.PatientID, tc.DoctorID, tc.ScheduledTime)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check duplicate booking: %w", err)
	case other.ID != tc.ID:
		return apperrors.New(apperrors.KindDuplicateBooking, "", msgDuplicateBooking)
	}
	return nil
}

func checkDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return apperrors.New(apperrors.KindInvalidDuration, FieldDuration, msgInvalidDuration)
	}
	return nil
}

func checkStatus(st *Status) error {
	if st == nil || !st.Valid() {
		names := make([]string, len(validStatuses))
		for i, v := range validStatuses {
			names[i] = string(v)
		}
		return apperrors.New(apperrors.KindInvalidStatus, FieldStatus,
			"Invalid status. Must be one of: "+strings.Join(names, ", "))
	}
	return nil
}

func checkMeetingURL(raw string) error {
	if len(raw) > maxMeetingURLLen {
		return apperrors.New(apperrors.KindInvalidURL, FieldMeetingURL,
			fmt.Sprintf("Ensure this field has no more than %d characters.", maxMeetingURLLen))
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.New(apperrors.KindInvalidURL, FieldMeetingURL, "Enter a valid URL.")
	}
	return nil
}

func mapConsultWriteError(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrUniqueViolation):
		return apperrors.Wrap(apperrors.KindDuplicateBooking, "", msgDuplicateBooking, err)
	case errors.Is(err, db.ErrCheckViolation):
		return apperrors.Wrap(apperrors.KindInvalidValue, "", "Booking violates a storage constraint.", err)
	case errors.Is(err, db.ErrForeignKeyViolation):
		return apperrors.Wrap(apperrors.KindInvalidReference, "doctor_id", "Doctor does not exist.", err)
	case errors.Is(err, apperrors.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// -- shared --

// lockDoctor serializes scheduling writes for one doctor until commit.
func (s *Service) lockDoctor(ctx context.Context, doctorID uuid.UUID, field string) error {
	err := s.doctors.LockByID(ctx, doctorID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return invalidReference(field, doctorID)
	}
	if err != nil {
		return fmt.Errorf("lock doctor %s: %w", doctorID, err)
	}
	return nil
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

func invalidReference(field string, id uuid.UUID) error {
	return apperrors.New(apperrors.KindInvalidReference, field,
		fmt.Sprintf("Invalid pk %q - object does not exist.", id.String()))
}

// normalizeInstant matches the microsecond precision of timestamptz so the
// duplicate pre-check compares what the store will hold.
func normalizeInstant(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).UTC()
}
