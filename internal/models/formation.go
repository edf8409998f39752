package models

import "time"

// FormationStatus represents the lifecycle state of a formation. The
// validation sub-machine runs PENDING -> VALIDATED | REJECTED; validated
// formations then progress along the operational axis VALIDATED -> ONGOING ->
// COMPLETED. Any non-terminal state may be cancelled.
type FormationStatus string

const (
	FormationStatusPending   FormationStatus = "PENDING"
	FormationStatusValidated FormationStatus = "VALIDATED"
	FormationStatusRejected  FormationStatus = "REJECTED"
	FormationStatusOngoing   FormationStatus = "ONGOING"
	FormationStatusCompleted FormationStatus = "COMPLETED"
	FormationStatusCancelled FormationStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s FormationStatus) Valid() bool {
	switch s {
	case FormationStatusPending, FormationStatusValidated, FormationStatusRejected,
		FormationStatusOngoing, FormationStatusCompleted, FormationStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s FormationStatus) Terminal() bool {
	return s == FormationStatusCompleted || s == FormationStatusCancelled
}

// CanTransitionTo encodes the operational transition table. Validation and
// rejection go through the dedicated Validate/Reject workflows, not here.
func (s FormationStatus) CanTransitionTo(next FormationStatus) bool {
	if next == FormationStatusCancelled {
		return !s.Terminal() && s != FormationStatusRejected
	}
	switch s {
	case FormationStatusValidated:
		return next == FormationStatusOngoing
	case FormationStatusOngoing:
		return next == FormationStatusCompleted
	default:
		return false
	}
}

// FormationLevel mirrors the niveau enum used by the dashboard.
type FormationLevel string

const (
	LevelDebutant      FormationLevel = "débutant"
	LevelIntermediaire FormationLevel = "intermédiaire"
	LevelAvance        FormationLevel = "avancé"
)

// Valid returns true when the level is a supported value.
func (l FormationLevel) Valid() bool {
	switch l {
	case LevelDebutant, LevelIntermediaire, LevelAvance:
		return true
	default:
		return false
	}
}

// Formation is a scheduled training course. Statut is the single source of
// truth for the approval state; validation audit rows are append-only side
// effects and are never read back to infer it. Version implements optimistic
// concurrency on updates.
type Formation struct {
	ID                string          `db:"id" json:"id"`
	Titre             string          `db:"titre" json:"titre"`
	Description       string          `db:"description" json:"description"`
	DateDebut         time.Time       `db:"date_debut" json:"date_debut"`
	DateFin           time.Time       `db:"date_fin" json:"date_fin"`
	Duree             int             `db:"duree" json:"duree"`
	Niveau            FormationLevel  `db:"niveau" json:"niveau"`
	Prix              float64         `db:"prix" json:"prix"`
	PlacesDisponibles int             `db:"places_disponibles" json:"places_disponibles"`
	Statut            FormationStatus `db:"statut" json:"statut"`
	FormateurID       string          `db:"formateur_id" json:"formateur_id"`
	VilleID           string          `db:"ville_id" json:"ville_id"`
	FiliereID         string          `db:"filiere_id" json:"filiere_id"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	ValidatedBy       *string         `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt       *time.Time      `db:"validated_at" json:"validated_at,omitempty"`
	RejectionReason   *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Version           int             `db:"version" json:"version"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// FormationDetail enriches a formation with reference labels.
type FormationDetail struct {
	Formation
	FormateurName string  `db:"formateur_name" json:"formateur_name"`
	VilleName     string  `db:"ville_name" json:"ville_name"`
	FiliereName   string  `db:"filiere_name" json:"filiere_name"`
	ValidatorName *string `db:"validator_name" json:"validator_name,omitempty"`
}

// FormationValidation is the append-only approval audit record.
type FormationValidation struct {
	ID          string    `db:"id" json:"id"`
	FormationID string    `db:"formation_id" json:"formation_id"`
	ValidatorID string    `db:"validator_id" json:"validator_id"`
	Comment     string    `db:"comment" json:"comment"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FormationFilter provides filters for listing formations.
type FormationFilter struct {
	Statut      FormationStatus
	Niveau      FormationLevel
	FormateurID string
	VilleID     string
	FiliereID   string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
