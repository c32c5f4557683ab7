package ports

import (
	"context"
	"io"

	"github.com/surgiscan/docintake/internal/core/domain"
)

// SubmitInput is one uploaded file plus its processing options.
type SubmitInput struct {
	Filename string
	Mode     domain.ProcessingMode
	// Persist keeps the stored payload after processing finishes; when
	// false the source file is removed once a settled status is reached.
	Persist bool
	Body    io.Reader
}

// DocumentIntake is the inbound contract for document submission. The
// duplicate flag reports that the upload matched an existing live record and
// no new processing pass was queued.
type DocumentIntake interface {
	Submit(ctx context.Context, input SubmitInput) (rec *domain.DocumentRecord, duplicate bool, err error)
}

// DocumentProcessor drives a received document through the status machine.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for records and status.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
}

// DocumentValidator applies human corrections to an extracted record.
type DocumentValidator interface {
	Validate(ctx context.Context, id string, data domain.ExtractedData, notes string) (*domain.DocumentRecord, error)
}

// StatisticsProvider aggregates intake-wide processing counters.
type StatisticsProvider interface {
	Statistics(ctx context.Context) (*domain.Statistics, error)
}
