package domain

// DocumentType tags one of the supported medical-document categories.
type DocumentType string

const (
	TypeCertificateOfFitness DocumentType = "certificate_of_fitness"
	TypeVisionTest           DocumentType = "vision_test"
	TypeAudiometricTest      DocumentType = "audiometric_test"
	TypeSpirometryReport     DocumentType = "spirometry_report"
	TypeConsentForm          DocumentType = "consent_form"
	TypeMedicalQuestionnaire DocumentType = "medical_questionnaire"
)

var displayNames = map[DocumentType]string{
	TypeCertificateOfFitness: "Certificate of Fitness",
	TypeVisionTest:           "Vision Test Report",
	TypeAudiometricTest:      "Audiometric Test Results",
	TypeSpirometryReport:     "Spirometry Report",
	TypeConsentForm:          "Drug Test Consent Form",
	TypeMedicalQuestionnaire: "Medical Questionnaire",
}

// expectedFieldCounts are the per-type field ceilings used when scoring
// extraction completeness.
var expectedFieldCounts = map[DocumentType]int{
	TypeCertificateOfFitness: 15,
	TypeVisionTest:           12,
	TypeAudiometricTest:      10,
	TypeSpirometryReport:     15,
	TypeConsentForm:          8,
	TypeMedicalQuestionnaire: 20,
}

func (t DocumentType) Supported() bool {
	_, ok := displayNames[t]
	return ok
}

func (t DocumentType) DisplayName() string {
	if name, ok := displayNames[t]; ok {
		return name
	}
	return string(t)
}

func (t DocumentType) ExpectedFields() int {
	if n, ok := expectedFieldCounts[t]; ok {
		return n
	}
	return 10
}

// MinMeaningfulFields is the extraction-quality floor: results with fewer
// populated fields are discarded as noise. Consent forms are short.
func (t DocumentType) MinMeaningfulFields() int {
	if t == TypeConsentForm {
		return 2
	}
	return 3
}

// AllTypes returns every supported type in a stable order.
func AllTypes() []DocumentType {
	return []DocumentType{
		TypeCertificateOfFitness,
		TypeVisionTest,
		TypeAudiometricTest,
		TypeSpirometryReport,
		TypeConsentForm,
		TypeMedicalQuestionnaire,
	}
}

// CommonTypes is the fallback set attempted when detection fails or is
// skipped.
func CommonTypes() []DocumentType {
	return []DocumentType{TypeCertificateOfFitness, TypeVisionTest, TypeAudiometricTest}
}
