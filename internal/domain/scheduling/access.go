package scheduling

import "github.com/medconnect/telehealth/internal/platform/auth"

// CanReadSlot: the owning doctor or an admin.
func CanReadSlot(id auth.Identity, slot *Availability) bool {
	return id.IsAdmin() || (id.Authenticated() && slot.DoctorUserID == id.UserID)
}

// CanWriteSlot: the owning doctor or an admin.
func CanWriteSlot(id auth.Identity, slot *Availability) bool {
	return CanReadSlot(id, slot)
}

// CanReadConsultation: the patient or the doctor on the booking. Admins get no
// override.
func CanReadConsultation(id auth.Identity, tc *Teleconsultation) bool {
	if !id.Authenticated() {
		return false
	}
	return tc.PatientID == id.UserID || tc.DoctorUserID == id.UserID
}

// CanWriteConsultation: the patient always; the doctor only for a status-only
// change to a valid status.
func CanWriteConsultation(id auth.Identity, tc *Teleconsultation, ch ConsultationChanges) bool {
	if !id.Authenticated() {
		return false
	}
	if tc.DoctorUserID == id.UserID && ch.StatusOnly() && ch.Status != nil && ch.Status.Valid() {
		return true
	}
	return tc.PatientID == id.UserID
}

// CanDeleteConsultation: the patient only.
func CanDeleteConsultation(id auth.Identity, tc *Teleconsultation) bool {
	return id.Authenticated() && tc.PatientID == id.UserID
}
