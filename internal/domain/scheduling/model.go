package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Availability maps to the availability table: one doctor, one day, one range.
type Availability struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor"`
	Day       Date      `json:"day"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DoctorUserID is the account owning DoctorID, joined on read.
	DoctorUserID uuid.UUID `json:"-"`
}

func (a *Availability) Range() TimeRange {
	return TimeRange{Start: a.StartTime, End: a.EndTime}
}

// SlotInput is the body of POST /availability and PUT /availability/:id.
// Doctor is only honoured for admins; doctors always create on their own
// profile.
type SlotInput struct {
	Doctor    *uuid.UUID `json:"doctor"`
	Day       *Date      `json:"day"`
	StartTime *TimeOfDay `json:"start_time"`
	EndTime   *TimeOfDay `json:"end_time"`
}

// SlotPatch carries the fields of a partial update. Nil keeps the stored value.
type SlotPatch struct {
	Day       *Date      `json:"day"`
	StartTime *TimeOfDay `json:"start_time"`
	EndTime   *TimeOfDay `json:"end_time"`
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 180
)

// Teleconsultation maps to the teleconsultation table.
type Teleconsultation struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Duration      int       `json:"duration"`
	MeetingURL    string    `json:"meeting_url"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// DoctorUserID is the account owning DoctorID, joined on read.
	DoctorUserID uuid.UUID `json:"-"`
}

// ConsultationInput is the body of POST /teleconsults.
type ConsultationInput struct {
	DoctorID      *uuid.UUID `json:"doctor_id"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Duration      *int       `json:"duration"`
	MeetingURL    *string    `json:"meeting_url"`
}

// Consultation body keys.
const (
	FieldScheduledTime = "scheduled_time"
	FieldDuration      = "duration"
	FieldMeetingURL    = "meeting_url"
	FieldStatus        = "status"
)

// ConsultationChanges is an update request together with the exact set of
// keys the caller sent, which decides between the doctor's status-only path
// and the patient's general update.
type ConsultationChanges struct {
	Keys          map[string]struct{}
	ScheduledTime *time.Time
	Duration      *int
	MeetingURL    *string
	Status        *Status
	// Full marks a PUT: scheduled_time, duration and meeting_url are required.
	Full bool
}

func (c ConsultationChanges) Has(key string) bool {
	_, ok := c.Keys[key]
	return ok
}

// StatusOnly reports whether the change set is exactly {status}.
func (c ConsultationChanges) StatusOnly() bool {
	return !c.Full && len(c.Keys) == 1 && c.Has(FieldStatus)
}

var patientWritableFields = map[string]bool{
	FieldScheduledTime: true,
	FieldDuration:      true,
	FieldMeetingURL:    true,
	FieldStatus:        true,
}
