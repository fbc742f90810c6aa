package domain

import "time"

type RegistryRecord struct {
	RegistrationNumber string             `json:"registration_number"`
	Verified           bool               `json:"verified"`
	Status             VerificationStatus `json:"status"`
	DoctorName         string             `json:"doctor_name,omitempty"`
	FatherName         string             `json:"father_name,omitempty"`
	LicenseStatus      string             `json:"license_status,omitempty"`
	RegistrationType   string             `json:"registration_type,omitempty"`
	RegistrationDate   string             `json:"registration_date,omitempty"`
	ValidUntil         string             `json:"valid_until,omitempty"`
	Source             string             `json:"source"`
	Message            string             `json:"message,omitempty"`
	Error              string             `json:"error,omitempty"`
	CheckedAt          time.Time          `json:"checked_at"`
}

// StatusRejected marks a registry lookup that found no matching registration.
const StatusRejected VerificationStatus = "rejected"
