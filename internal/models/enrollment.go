package models

import "time"

// EnrollmentStatus represents the per-pair pivot status. The field is
// administrative: any valid value may be written over another, there is no
// ordering discipline like the formation lifecycle.
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusAbandoned EnrollmentStatus = "ABANDONED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusEnrolled, EnrollmentStatusCompleted, EnrollmentStatusAbandoned:
		return true
	default:
		return false
	}
}

// Enrollment is the pivot record linking a participant to a formation. The
// (formation_id, participant_id) pair is unique; Version guards concurrent
// status updates.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	FormationID   string           `db:"formation_id" json:"formation_id"`
	ParticipantID string           `db:"participant_id" json:"participant_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Version       int              `db:"version" json:"version"`
}

// EnrollmentDetail enriches the pivot with formation and participant labels.
type EnrollmentDetail struct {
	Enrollment
	FormationTitre  string `db:"formation_titre" json:"formation_titre"`
	ParticipantName string `db:"participant_name" json:"participant_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	FormationID   string
	ParticipantID string
	Status        EnrollmentStatus
	Page          int
	PageSize      int
}
