package domain

import "math"

// identity field aliases seen across the supported document schemas.
var (
	nameFields = []string{"patient_name", "name", "initials_and_surname", "employee_name"}
	idFields   = []string{"id_number", "id_no", "patient_id"}
)

// MeaningfulFields drops empty values so extraction quality is judged on
// populated fields only.
func MeaningfulFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if isEmptyValue(value) {
			continue
		}
		out[key] = value
	}
	return out
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// ConfidenceScore averages per-type completeness: populated fields over the
// expected field ceiling, capped at 1. Rounded to two decimals.
func ConfidenceScore(data ExtractedData) float64 {
	if len(data) == 0 {
		return 0
	}
	var total float64
	for docType, fields := range data {
		populated := len(MeaningfulFields(fields))
		expected := DocumentType(docType).ExpectedFields()
		score := float64(populated) / float64(expected)
		if score > 1 {
			score = 1
		}
		total += score
	}
	return math.Round(total/float64(len(data))*100) / 100
}

// PatientIdentity pulls the first name and id-number candidates found in any
// extracted type.
func PatientIdentity(data ExtractedData) (name, idNumber string) {
	for _, fields := range data {
		if name == "" {
			name = firstString(fields, nameFields)
		}
		if idNumber == "" {
			idNumber = firstString(fields, idFields)
		}
	}
	return name, idNumber
}

func firstString(fields map[string]any, candidates []string) string {
	for _, key := range candidates {
		if value, ok := fields[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// NeedsValidation decides whether a human must review the extraction:
// aggregate confidence below the threshold, more than one document type
// detected for the file, or missing patient identity fields.
func NeedsValidation(data ExtractedData, confidence float64, detectedTypes int, threshold float64) bool {
	if len(data) == 0 {
		return true
	}
	if confidence < threshold {
		return true
	}
	if detectedTypes > 1 {
		return true
	}
	name, idNumber := PatientIdentity(data)
	return name == "" || idNumber == ""
}
