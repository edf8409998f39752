package models

import "time"

// PaymentStatus tracks the participant's payment state.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Valid returns true when the status is a supported value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// Participant is a trainee enrolled in formations. Participants are tracked
// separately from dashboard users.
type Participant struct {
	ID            string        `db:"id" json:"id"`
	FullName      string        `db:"full_name" json:"full_name"`
	Email         string        `db:"email" json:"email"`
	Phone         string        `db:"phone" json:"phone"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ParticipantFilter captures filtering criteria for listing participants.
type ParticipantFilter struct {
	PaymentStatus PaymentStatus
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// ParticipantProgress aggregates a participant's formation and absence
// footprint for the progress dashboard.
type ParticipantProgress struct {
	ParticipantID       string `db:"participant_id" json:"participant_id"`
	FullName            string `db:"full_name" json:"full_name"`
	TotalEnrollments    int    `db:"total_enrollments" json:"total_enrollments"`
	CompletedFormations int    `db:"completed_formations" json:"completed_formations"`
	ActiveFormations    int    `db:"active_formations" json:"active_formations"`
	TotalAbsences       int    `db:"total_absences" json:"total_absences"`
	UnjustifiedAbsences int    `db:"unjustified_absences" json:"unjustified_absences"`
}
