package doctor

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile maps to the doctor_profile table. One per doctor account.
type Profile struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	LicenseNumber   string          `json:"license_number"`
	Specialization  string          `json:"specialization"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
	Available       bool            `json:"available"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RegisterInput is the body of POST /doctors/register.
type RegisterInput struct {
	LicenseNumber   string           `json:"license_number"`
	Specialization  string           `json:"specialization"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
}

// ProfilePatch holds the mutable profile fields. license_number is fixed at
// registration and is not accepted here.
type ProfilePatch struct {
	Specialization  *string          `json:"specialization"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
	Available       *bool            `json:"available"`
}

const (
	maxLicenseLen        = 100
	maxSpecializationLen = 100
	maxFeeDigits         = 10
	feeDecimalPlaces     = 2
)
