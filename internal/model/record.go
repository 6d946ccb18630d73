package model

import "time"

// Field keys used for confidence reporting and validation issues. The keys
// match the JSON schema the model is asked to fill.
const (
	FieldClientFirstName = "mandant.vorname"
	FieldClientLastName  = "mandant.nachname"
	FieldClientSalute    = "mandant.anrede"
	FieldClientStreet    = "mandant.strasse"
	FieldClientZip       = "mandant.plz"
	FieldClientCity      = "mandant.ort"
	FieldClientEmail     = "mandant.email"
	FieldClientPhone     = "mandant.telefon"
	FieldInsurerName     = "gegner_versicherung.name"
	FieldInsurerClaimNo  = "gegner_versicherung.schadennummer"
	FieldAccidentDate    = "unfall.datum"
	FieldAccidentPlace   = "unfall.ort"
	FieldPlateClient     = "unfall.kennzeichen_mandant"
	FieldPlateOpponent   = "unfall.kennzeichen_gegner"
	FieldVehicleType     = "fahrzeug.typ"
	FieldVehiclePowerKW  = "fahrzeug.kw"
	FieldVehicleFirstReg = "fahrzeug.ez"
	FieldSubject         = "betreff"
	FieldSummary         = "zusammenfassung"
	FieldActionNeeded    = "handlungsbedarf"
)

// RequiredFields lists the fields that must validate cleanly before a record
// qualifies for automatic filing.
func RequiredFields() []string {
	return []string{
		FieldClientFirstName,
		FieldClientLastName,
		FieldAccidentDate,
		FieldSubject,
	}
}

// ClientInfo holds extracted client (Mandant) data.
type ClientInfo struct {
	FirstName  string `json:"vorname"`
	LastName   string `json:"nachname"`
	Salutation string `json:"anrede"`
	Street     string `json:"strasse"`
	ZipCode    string `json:"plz"`
	City       string `json:"ort"`
	Email      string `json:"email"`
	Phone      string `json:"telefon"`
}

// InsurerInfo holds extracted opposing-insurer data.
type InsurerInfo struct {
	Name        string `json:"name"`
	ClaimNumber string `json:"schadennummer"`
	Street      string `json:"strasse"`
	ZipCode     string `json:"plz"`
	City        string `json:"ort"`
}

// AccidentInfo holds extracted accident data.
type AccidentInfo struct {
	Date          string   `json:"datum"` // normalized to YYYY-MM-DD by validation
	Place         string   `json:"ort"`
	PlateClient   string   `json:"kennzeichen_mandant"`
	PlateOpponent string   `json:"kennzeichen_gegner"`
	ExtraPlates   []string `json:"weitere_kennzeichen,omitempty"`
}

// VehicleInfo holds extracted client-vehicle data from registration documents.
type VehicleInfo struct {
	Type              string `json:"typ"`
	PowerKW           string `json:"kw"`
	FirstRegistration string `json:"ez"`
}

// CandidateRecord is the raw structured output of an extraction. Fields may
// be empty or malformed; it exists only between extraction and validation.
type CandidateRecord struct {
	Client       ClientInfo         `json:"mandant"`
	Insurer      InsurerInfo        `json:"gegner_versicherung"`
	Accident     AccidentInfo       `json:"unfall"`
	Vehicle      VehicleInfo        `json:"fahrzeug"`
	Subject      string             `json:"betreff"`
	Summary      string             `json:"zusammenfassung"`
	ActionNeeded string             `json:"handlungsbedarf"`
	Confidence   map[string]float64 `json:"confidence,omitempty"` // per field key, 0..1
	Notes        []string           `json:"notes,omitempty"`      // extraction diagnostics
}

// FieldIssue describes a single field that failed validation.
type FieldIssue struct {
	Field      string  `json:"field"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// ValidatedRecord is a CandidateRecord after type checks and normalization.
// Validation never fails; problems surface as Issues and the review flag.
type ValidatedRecord struct {
	Client       ClientInfo   `json:"mandant"`
	Insurer      InsurerInfo  `json:"gegner_versicherung"`
	Accident     AccidentInfo `json:"unfall"`
	Vehicle      VehicleInfo  `json:"fahrzeug"`
	Subject      string       `json:"betreff"`
	Summary      string       `json:"zusammenfassung"`
	ActionNeeded string       `json:"handlungsbedarf"`

	Issues              []FieldIssue       `json:"issues,omitempty"`
	FieldConfidence     map[string]float64 `json:"field_confidence,omitempty"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	RequiresReview      bool               `json:"requires_review"`
}

// IssueFor returns the issue recorded for a field, if any.
func (r *ValidatedRecord) IssueFor(field string) (FieldIssue, bool) {
	for _, is := range r.Issues {
		if is.Field == field {
			return is, true
		}
	}
	return FieldIssue{}, false
}

// ReviewTicket packages a flagged record for human verification.
type ReviewTicket struct {
	Record    ValidatedRecord `json:"record"`
	Issues    []FieldIssue    `json:"issues"`
	CreatedAt time.Time       `json:"created_at"`
}

// Outcome is the terminal disposition of a successful intake.
type Outcome string

const (
	OutcomeAutoFileable   Outcome = "auto_fileable"
	OutcomeReviewRequired Outcome = "review_required"
)

// IntakeResult is the pipeline's output, handed to the backend client by the
// caller. The pipeline itself never persists it.
type IntakeResult struct {
	JobID   string          `json:"job_id"`
	Outcome Outcome         `json:"outcome"`
	Record  ValidatedRecord `json:"record"`
	Ticket  *ReviewTicket   `json:"ticket,omitempty"`
}
