package ports

import (
	"context"
	"io"

	"github.com/surgiscan/docintake/internal/core/domain"
)

// DocumentRepository persists and reads document records.
type DocumentRepository interface {
	Create(ctx context.Context, rec *domain.DocumentRecord) error
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	FindByContentHash(ctx context.Context, hash string) (*domain.DocumentRecord, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, failureReason string) error
	SaveExtraction(ctx context.Context, id string, outcome domain.ExtractionOutcome) error
	SaveValidation(ctx context.Context, id string, data domain.ExtractedData, notes string) error
	Statistics(ctx context.Context) (*domain.Statistics, error)
}

// ObjectStorage stores source document payloads.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue carries submit events from the API to processing workers.
type MessageQueue interface {
	PublishDocumentReceived(ctx context.Context, documentID string) error
	SubscribeDocumentReceived(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentDetector identifies which document types are present in a payload.
type DocumentDetector interface {
	Detect(ctx context.Context, payload []byte, filename string) (domain.Detection, error)
}

// FieldExtractor extracts the fields of one document type from a payload.
type FieldExtractor interface {
	Extract(ctx context.Context, payload []byte, filename string, docType domain.DocumentType) (map[string]any, error)
}

// PayloadInspector reports structural facts about an uploaded payload.
type PayloadInspector interface {
	PageCount(payload []byte, filename string) (int, error)
}
