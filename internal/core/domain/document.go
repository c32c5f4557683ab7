package domain

import "time"

type DocumentStatus string

const (
	StatusReceived        DocumentStatus = "received"
	StatusDetecting       DocumentStatus = "detecting"
	StatusExtracting      DocumentStatus = "extracting"
	StatusExtracted       DocumentStatus = "extracted"
	StatusNeedsValidation DocumentStatus = "needs_validation"
	StatusValidated       DocumentStatus = "validated"
	StatusFailed          DocumentStatus = "failed"
)

// transitions is the complete forward edge set of the status machine.
// Detection-only processing goes straight from detecting to a reviewable
// status because it never enters the extraction phase.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusReceived:        {StatusDetecting, StatusFailed},
	StatusDetecting:       {StatusExtracting, StatusExtracted, StatusNeedsValidation, StatusFailed},
	StatusExtracting:      {StatusExtracted, StatusNeedsValidation, StatusFailed},
	StatusExtracted:       {StatusValidated, StatusFailed},
	StatusNeedsValidation: {StatusValidated, StatusFailed},
	StatusValidated:       {},
	StatusFailed:          {},
}

func CanTransition(from, to DocumentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition can ever leave the status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusValidated || s == StatusFailed
}

// Settled reports whether automatic processing is finished: the record is
// either terminal or waiting only on a human reviewer.
func (s DocumentStatus) Settled() bool {
	switch s {
	case StatusExtracted, StatusNeedsValidation, StatusValidated, StatusFailed:
		return true
	default:
		return false
	}
}

// ExtractedData maps a document-type tag to its extracted field values.
type ExtractedData map[string]map[string]any

type ProcessingSummary struct {
	Mode                  ProcessingMode `json:"mode"`
	TypesAttempted        int            `json:"types_attempted"`
	SuccessfulExtractions int            `json:"successful_extractions"`
	TotalFields           int            `json:"total_fields"`
	ProcessingMS          int64          `json:"processing_ms"`
	APICalls              int            `json:"api_calls"`
	PageCount             int            `json:"page_count,omitempty"`
}

type DocumentRecord struct {
	ID                 string            `json:"id"`
	Filename           string            `json:"filename"`
	ContentHash        string            `json:"content_hash"`
	StoragePath        string            `json:"storage_path"`
	Mode               ProcessingMode    `json:"processing_mode"`
	Status             DocumentStatus    `json:"status"`
	DocumentTypesFound []string          `json:"document_types_found"`
	ExtractedData      ExtractedData     `json:"extracted_data"`
	TypeErrors         map[string]string `json:"type_errors,omitempty"`
	ConfidenceScore    float64           `json:"confidence_score"`
	NeedsValidation    bool              `json:"needs_validation"`
	ValidationNotes    string            `json:"validation_notes,omitempty"`
	ValidatedAt        *time.Time        `json:"validated_at,omitempty"`
	Summary            ProcessingSummary `json:"processing_summary"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	RetainFile         bool              `json:"retain_file"`
	UploadedAt         time.Time         `json:"uploaded_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Detection is the outcome of the upstream document-type detection call.
type Detection struct {
	Types      []DocumentType `json:"document_types"`
	Primary    DocumentType   `json:"primary_document"`
	Confidence float64        `json:"confidence"`
}

// ExtractionOutcome is everything the orchestrator learned about a document
// in one processing pass, persisted atomically with the final status.
type ExtractionOutcome struct {
	Status          DocumentStatus
	TypesFound      []string
	Data            ExtractedData
	TypeErrors      map[string]string
	Confidence      float64
	NeedsValidation bool
	Summary         ProcessingSummary
}

type Statistics struct {
	TotalDocuments     int            `json:"total_documents"`
	StatusBreakdown    map[string]int `json:"status_breakdown"`
	ModeBreakdown      map[string]int `json:"processing_mode_breakdown"`
	DocumentTypeCounts map[string]int `json:"document_types_found"`
	AverageConfidence  float64        `json:"average_confidence"`
	ValidationBacklog  int            `json:"validation_needed"`
	Validated          int            `json:"validated"`
	LastUpdated        time.Time      `json:"last_updated"`
}
