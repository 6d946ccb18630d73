// Package schema validates and normalizes candidate records against the
// case-intake schema. Validation never fails a request; problems become
// field issues and, where required fields are affected, a review flag.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/model"
)

// Validator applies the intake schema with configured thresholds.
type Validator struct {
	fieldThreshold  float64
	reviewThreshold float64
}

// NewValidator creates a validator from pipeline config.
func NewValidator(cfg config.PipelineConfig) *Validator {
	return &Validator{
		fieldThreshold:  cfg.FieldConfidenceThreshold,
		reviewThreshold: cfg.ReviewThreshold,
	}
}

// normalizeFn cleans a field value; a non-nil error flags the field without
// discarding the value.
type normalizeFn func(string) (string, error)

// fieldRule describes validation for one schema field.
type fieldRule struct {
	key       string
	required  bool
	normalize normalizeFn
	get       func(*model.ValidatedRecord) string
	set       func(*model.ValidatedRecord, string)
}

var (
	zipPattern   = regexp.MustCompile(`^\d{5}$`)
	phonePattern = regexp.MustCompile(`^[+0-9][0-9 /()-]{3,24}$`)
)

// Validate turns a CandidateRecord into a ValidatedRecord. It is a pure
// function of its input: running it twice over the same candidate yields the
// same result, and re-validating an already normalized record changes
// nothing.
func (v *Validator) Validate(candidate *model.CandidateRecord) *model.ValidatedRecord {
	record := &model.ValidatedRecord{
		Client:          candidate.Client,
		Insurer:         candidate.Insurer,
		Accident:        candidate.Accident,
		Vehicle:         candidate.Vehicle,
		Subject:         strings.TrimSpace(candidate.Subject),
		Summary:         strings.TrimSpace(candidate.Summary),
		ActionNeeded:    strings.TrimSpace(candidate.ActionNeeded),
		FieldConfidence: map[string]float64{},
	}
	record.Accident.ExtraPlates = normalizePlates(candidate.Accident.ExtraPlates)

	requiredIssue := false
	var confidenceSum float64
	required := model.RequiredFields()

	for _, rule := range rules {
		value := strings.TrimSpace(rule.get(record))
		confidence, reported := candidate.Confidence[rule.key]
		if !reported {
			// The model filled the field but skipped its confidence
			// entry; score it exactly at the field threshold.
			confidence = v.fieldThreshold
		}

		var issue *model.FieldIssue
		switch {
		case value == "":
			confidence = 0
			if rule.required {
				issue = &model.FieldIssue{Field: rule.key, Reason: "missing"}
			}
		case rule.normalize != nil:
			normalized, err := rule.normalize(value)
			if err != nil {
				issue = &model.FieldIssue{
					Field:      rule.key,
					Reason:     err.Error(),
					Confidence: confidence,
				}
			} else {
				value = normalized
			}
		}

		if issue == nil && value != "" && confidence < v.fieldThreshold {
			issue = &model.FieldIssue{
				Field:      rule.key,
				Reason:     fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, v.fieldThreshold),
				Confidence: confidence,
			}
		}

		rule.set(record, value)
		if value != "" {
			record.FieldConfidence[rule.key] = confidence
		}
		if issue != nil {
			record.Issues = append(record.Issues, *issue)
			if rule.required {
				requiredIssue = true
			}
		}

		// Required fields that are missing, malformed, or low-confidence
		// contribute 0 to the aggregate.
		if isRequired(rule.key, required) && issue == nil {
			confidenceSum += confidence
		}
	}

	// Extraction diagnostics always route the record to a human.
	for _, note := range candidate.Notes {
		record.Issues = append(record.Issues, model.FieldIssue{
			Field:  "extraction",
			Reason: note,
		})
		requiredIssue = true
	}

	record.AggregateConfidence = confidenceSum / float64(len(required))
	record.RequiresReview = requiredIssue || record.AggregateConfidence < v.reviewThreshold

	return record
}

func isRequired(key string, required []string) bool {
	for _, r := range required {
		if r == key {
			return true
		}
	}
	return false
}

// dateLayouts are the accepted input formats, normalized to ISO 8601.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
}

// normalizeDate parses known date formats and emits YYYY-MM-DD.
func normalizeDate(s string) (string, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return s, fmt.Errorf("unrecognized date format %q", s)
}

// normalizePlate uppercases a license plate and tidies separators.
func normalizePlate(s string) (string, error) {
	return strings.ToUpper(strings.Join(strings.Fields(s), " ")), nil
}

func normalizePlates(plates []string) []string {
	if len(plates) == 0 {
		return nil
	}
	out := make([]string, 0, len(plates))
	for _, p := range plates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		normalized, _ := normalizePlate(p)
		out = append(out, normalized)
	}
	return out
}

func normalizeZip(s string) (string, error) {
	s = strings.ReplaceAll(s, " ", "")
	if !zipPattern.MatchString(s) {
		return s, fmt.Errorf("invalid postal code %q", s)
	}
	return s, nil
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 || !strings.Contains(s[at:], ".") {
		return s, fmt.Errorf("invalid email address %q", s)
	}
	return s, nil
}

func normalizePhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !phonePattern.MatchString(s) {
		return s, fmt.Errorf("invalid phone number %q", s)
	}
	return s, nil
}

// normalizeSalutation maps free-form salutations onto Herr/Frau.
func normalizeSalutation(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "herr", "hr", "hr.", "mr", "mr.":
		return "Herr", nil
	case "frau", "fr", "fr.", "ms", "ms.", "mrs", "mrs.":
		return "Frau", nil
	}
	return s, fmt.Errorf("unrecognized salutation %q", s)
}

func normalizeKW(s string) (string, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(s), "kw"))
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r < '0' || r > '9' {
			return s, fmt.Errorf("invalid engine power %q", s)
		}
	}
	if s == "" {
		return s, fmt.Errorf("invalid engine power %q", s)
	}
	return s, nil
}

// rules covers every schema field. Order matches the record layout.
var rules = []fieldRule{
	{
		key: model.FieldClientFirstName, required: true,
		get: func(r *model.ValidatedRecord) string { return r.Client.FirstName },
		set: func(r *model.ValidatedRecord, v string) { r.Client.FirstName = v },
	},
	{
		key: model.FieldClientLastName, required: true,
		get: func(r *model.ValidatedRecord) string { return r.Client.LastName },
		set: func(r *model.ValidatedRecord, v string) { r.Client.LastName = v },
	},
	{
		key: model.FieldClientSalute, normalize: normalizeSalutation,
		get: func(r *model.ValidatedRecord) string { return r.Client.Salutation },
		set: func(r *model.ValidatedRecord, v string) { r.Client.Salutation = v },
	},
	{
		key: model.FieldClientStreet,
		get: func(r *model.ValidatedRecord) string { return r.Client.Street },
		set: func(r *model.ValidatedRecord, v string) { r.Client.Street = v },
	},
	{
		key: model.FieldClientZip, normalize: normalizeZip,
		get: func(r *model.ValidatedRecord) string { return r.Client.ZipCode },
		set: func(r *model.ValidatedRecord, v string) { r.Client.ZipCode = v },
	},
	{
		key: model.FieldClientCity,
		get: func(r *model.ValidatedRecord) string { return r.Client.City },
		set: func(r *model.ValidatedRecord, v string) { r.Client.City = v },
	},
	{
		key: model.FieldClientEmail, normalize: normalizeEmail,
		get: func(r *model.ValidatedRecord) string { return r.Client.Email },
		set: func(r *model.ValidatedRecord, v string) { r.Client.Email = v },
	},
	{
		key: model.FieldClientPhone, normalize: normalizePhone,
		get: func(r *model.ValidatedRecord) string { return r.Client.Phone },
		set: func(r *model.ValidatedRecord, v string) { r.Client.Phone = v },
	},
	{
		key: model.FieldInsurerName,
		get: func(r *model.ValidatedRecord) string { return r.Insurer.Name },
		set: func(r *model.ValidatedRecord, v string) { r.Insurer.Name = v },
	},
	{
		key: model.FieldInsurerClaimNo,
		get: func(r *model.ValidatedRecord) string { return r.Insurer.ClaimNumber },
		set: func(r *model.ValidatedRecord, v string) { r.Insurer.ClaimNumber = v },
	},
	{
		key: model.FieldAccidentDate, required: true, normalize: normalizeDate,
		get: func(r *model.ValidatedRecord) string { return r.Accident.Date },
		set: func(r *model.ValidatedRecord, v string) { r.Accident.Date = v },
	},
	{
		key: model.FieldAccidentPlace,
		get: func(r *model.ValidatedRecord) string { return r.Accident.Place },
		set: func(r *model.ValidatedRecord, v string) { r.Accident.Place = v },
	},
	{
		key: model.FieldPlateClient, normalize: normalizePlate,
		get: func(r *model.ValidatedRecord) string { return r.Accident.PlateClient },
		set: func(r *model.ValidatedRecord, v string) { r.Accident.PlateClient = v },
	},
	{
		key: model.FieldPlateOpponent, normalize: normalizePlate,
		get: func(r *model.ValidatedRecord) string { return r.Accident.PlateOpponent },
		set: func(r *model.ValidatedRecord, v string) { r.Accident.PlateOpponent = v },
	},
	{
		key: model.FieldVehicleType,
		get: func(r *model.ValidatedRecord) string { return r.Vehicle.Type },
		set: func(r *model.ValidatedRecord, v string) { r.Vehicle.Type = v },
	},
	{
		key: model.FieldVehiclePowerKW, normalize: normalizeKW,
		get: func(r *model.ValidatedRecord) string { return r.Vehicle.PowerKW },
		set: func(r *model.ValidatedRecord, v string) { r.Vehicle.PowerKW = v },
	},
	{
		key: model.FieldVehicleFirstReg, normalize: normalizeDate,
		get: func(r *model.ValidatedRecord) string { return r.Vehicle.FirstRegistration },
		set: func(r *model.ValidatedRecord, v string) { r.Vehicle.FirstRegistration = v },
	},
	{
		key: model.FieldSubject, required: true,
		get: func(r *model.ValidatedRecord) string { return r.Subject },
		set: func(r *model.ValidatedRecord, v string) { r.Subject = v },
	},
	{
		key: model.FieldSummary,
		get: func(r *model.ValidatedRecord) string { return r.Summary },
		set: func(r *model.ValidatedRecord, v string) { r.Summary = v },
	},
	{
		key: model.FieldActionNeeded,
		get: func(r *model.ValidatedRecord) string { return r.ActionNeeded },
		set: func(r *model.ValidatedRecord, v string) { r.ActionNeeded = v },
	},
}
