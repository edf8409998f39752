package models

import "time"

// AbsenceStatus is the canonical three-state absence enum. PENDING is the
// default until a trainer or admin rules on the justification.
type AbsenceStatus string

const (
	AbsenceStatusPending     AbsenceStatus = "PENDING"
	AbsenceStatusJustified   AbsenceStatus = "JUSTIFIED"
	AbsenceStatusUnjustified AbsenceStatus = "UNJUSTIFIED"
)

// Valid returns true when the status is a supported value.
func (s AbsenceStatus) Valid() bool {
	switch s {
	case AbsenceStatusPending, AbsenceStatusJustified, AbsenceStatusUnjustified:
		return true
	default:
		return false
	}
}

// Absence is a per-participant, per-formation attendance exception.
type Absence struct {
	ID            string        `db:"id" json:"id"`
	ParticipantID string        `db:"participant_id" json:"participant_id"`
	FormationID   string        `db:"formation_id" json:"formation_id"`
	Date          time.Time     `db:"date" json:"date"`
	Reason        string        `db:"reason" json:"reason"`
	Status        AbsenceStatus `db:"status" json:"status"`
	Comment       *string       `db:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// AbsenceDetail enriches an absence with participant and formation labels.
type AbsenceDetail struct {
	Absence
	ParticipantName string `db:"participant_name" json:"participant_name"`
	FormationTitre  string `db:"formation_titre" json:"formation_titre"`
}

// AbsenceFilter scopes listing and statistics queries.
type AbsenceFilter struct {
	ParticipantID string
	FormationID   string
	Status        AbsenceStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// AbsenceMonthCount is one month bucket in the statistics response.
type AbsenceMonthCount struct {
	Month string `db:"month" json:"month"`
	Count int    `db:"count" json:"count"`
}

// AbsenceStatistics aggregates absences for the statistics endpoint. Total
// always equals the sum of the per-status counts.
type AbsenceStatistics struct {
	Total       int                 `json:"total"`
	Pending     int                 `json:"pending"`
	Justified   int                 `json:"justified"`
	Unjustified int                 `json:"unjustified"`
	ByMonth     []AbsenceMonthCount `json:"by_month"`
	GeneratedAt time.Time           `json:"generated_at"`
}
