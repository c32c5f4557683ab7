package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
)

type submitRepoFake struct {
	created  *domain.DocumentRecord
	existing *domain.DocumentRecord
}

func (f *submitRepoFake) Create(_ context.Context, rec *domain.DocumentRecord) error {
	f.created = rec
	return nil
}

func (f *submitRepoFake) GetByID(context.Context, string) (*domain.DocumentRecord, error) {
	return nil, domain.ErrNotFound
}

func (f *submitRepoFake) FindByContentHash(_ context.Context, hash string) (*domain.DocumentRecord, error) {
	// Mirrors the repository contract: failed records never match.
	if f.existing != nil && f.existing.ContentHash == hash && f.existing.Status != domain.StatusFailed {
		return f.existing, nil
	}
	return nil, nil
}

func (f *submitRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

func (f *submitRepoFake) SaveExtraction(context.Context, string, domain.ExtractionOutcome) error {
	return nil
}

func (f *submitRepoFake) SaveValidation(context.Context, string, domain.ExtractedData, string) error {
	return nil
}

func (f *submitRepoFake) Statistics(context.Context) (*domain.Statistics, error) { return nil, nil }

type queueFake struct {
	published []string
}

func (f *queueFake) PublishDocumentReceived(_ context.Context, id string) error {
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeDocumentReceived(context.Context, func(context.Context, string) error) error {
	return nil
}

type inspectorFake struct {
	pages int
}

func (f *inspectorFake) PageCount([]byte, string) (int, error) { return f.pages, nil }

func submitCfg() SubmitConfig {
	return SubmitConfig{
		MaxFileBytes:      1 << 20,
		AllowedExtensions: []string{"pdf", "png", "jpg", "jpeg", "tiff"},
	}
}

func TestSubmitCreatesReceivedRecordAndPublishes(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}

	uc := NewSubmitDocumentUseCase(repo, storage, queue, &inspectorFake{pages: 3}, submitCfg())
	rec, duplicate, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "fitness cert.pdf",
		Mode:     domain.ModeSmart,
		Persist:  true,
		Body:     strings.NewReader("%PDF-1.4 fake"),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if duplicate {
		t.Fatalf("fresh upload must not be flagged as duplicate")
	}
	if rec.Status != domain.StatusReceived {
		t.Fatalf("expected received, got %s", rec.Status)
	}
	if rec.ID == "" || rec.ContentHash == "" {
		t.Fatalf("expected id and content hash to be set: %+v", rec)
	}
	if !strings.HasSuffix(rec.StoragePath, "_fitness_cert.pdf") {
		t.Fatalf("unexpected storage key %q", rec.StoragePath)
	}
	if _, ok := storage.payloads[rec.StoragePath]; !ok {
		t.Fatalf("payload was not stored under %q", rec.StoragePath)
	}
	if rec.Summary.PageCount != 3 {
		t.Fatalf("expected page count 3, got %d", rec.Summary.PageCount)
	}
	if !rec.RetainFile {
		t.Fatalf("persist=true must set file retention")
	}
	if len(queue.published) != 1 || queue.published[0] != rec.ID {
		t.Fatalf("expected one received event for %s, got %v", rec.ID, queue.published)
	}
	if repo.created == nil {
		t.Fatalf("record was not persisted")
	}
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	uc := NewSubmitDocumentUseCase(&submitRepoFake{}, &storageFake{}, &queueFake{}, &inspectorFake{}, submitCfg())
	_, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "malware.exe",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("MZ"),
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsMissingFilename(t *testing.T) {
	uc := NewSubmitDocumentUseCase(&submitRepoFake{}, &storageFake{}, &queueFake{}, &inspectorFake{}, submitCfg())
	_, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "   ",
		Body:     strings.NewReader("data"),
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsEmptyUpload(t *testing.T) {
	uc := NewSubmitDocumentUseCase(&submitRepoFake{}, &storageFake{}, &queueFake{}, &inspectorFake{}, submitCfg())
	_, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "empty.pdf",
		Body:     strings.NewReader(""),
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsOversizeUpload(t *testing.T) {
	cfg := submitCfg()
	cfg.MaxFileBytes = 8
	uc := NewSubmitDocumentUseCase(&submitRepoFake{}, &storageFake{}, &queueFake{}, &inspectorFake{}, cfg)
	_, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "big.pdf",
		Body:     strings.NewReader("way more than eight bytes"),
	})
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitReturnsExistingRecordForDuplicateContent(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewSubmitDocumentUseCase(repo, storage, queue, &inspectorFake{}, submitCfg())

	first, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "scan.pdf",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first.Status = domain.StatusExtracted
	repo.existing = first

	second, duplicate, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "renamed-copy.pdf",
		Mode:     domain.ModeFast,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() duplicate error = %v", err)
	}
	if !duplicate {
		t.Fatalf("matching content must be reported as a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate content must return the existing record, got %s and %s", first.ID, second.ID)
	}
	if len(queue.published) != 1 {
		t.Fatalf("duplicate of a settled record must not publish again, got %v", queue.published)
	}
	if len(storage.payloads) != 1 {
		t.Fatalf("duplicate submission must not store a second payload")
	}
}

func TestSubmitStartsOverAfterFailedDocument(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewSubmitDocumentUseCase(repo, storage, queue, &inspectorFake{}, submitCfg())

	first, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "scan.pdf",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	first.Status = domain.StatusFailed
	repo.existing = first

	second, duplicate, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "scan.pdf",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() resubmission error = %v", err)
	}
	if duplicate {
		t.Fatalf("resubmitting a failed document must start a fresh pass")
	}
	if second.ID == first.ID {
		t.Fatalf("resubmission must create a new record, reused %s", first.ID)
	}
	if second.Status != domain.StatusReceived {
		t.Fatalf("expected received, got %s", second.Status)
	}
	if len(queue.published) != 2 || queue.published[1] != second.ID {
		t.Fatalf("resubmission must queue a new pass, got %v", queue.published)
	}
}

func TestSubmitRequeuesDuplicateOfStuckReceivedRecord(t *testing.T) {
	repo := &submitRepoFake{}
	queue := &queueFake{}
	uc := NewSubmitDocumentUseCase(repo, &storageFake{}, queue, &inspectorFake{}, submitCfg())

	first, _, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "scan.pdf",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	repo.existing = first

	second, duplicate, err := uc.Submit(context.Background(), ports.SubmitInput{
		Filename: "scan.pdf",
		Mode:     domain.ModeSmart,
		Body:     strings.NewReader("identical bytes"),
	})
	if err != nil {
		t.Fatalf("Submit() duplicate error = %v", err)
	}
	if !duplicate || second.ID != first.ID {
		t.Fatalf("expected the stuck record back, got %+v duplicate=%v", second, duplicate)
	}
	// The original handoff may have been lost; the event goes out again.
	if len(queue.published) != 2 || queue.published[1] != first.ID {
		t.Fatalf("expected a second received event for %s, got %v", first.ID, queue.published)
	}
}
