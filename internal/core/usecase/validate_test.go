package usecase

import (
	"context"
	"testing"

	"github.com/surgiscan/docintake/internal/core/domain"
)

type validateRepoFake struct {
	rec        *domain.DocumentRecord
	savedData  domain.ExtractedData
	savedNotes string
	saveCalls  int
}

func (f *validateRepoFake) Create(context.Context, *domain.DocumentRecord) error { return nil }

func (f *validateRepoFake) GetByID(_ context.Context, id string) (*domain.DocumentRecord, error) {
	if f.rec == nil || f.rec.ID != id {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", domain.ErrNotFound)
	}
	copyRec := *f.rec
	return &copyRec, nil
}

func (f *validateRepoFake) FindByContentHash(context.Context, string) (*domain.DocumentRecord, error) {
	return nil, nil
}

func (f *validateRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

func (f *validateRepoFake) SaveExtraction(context.Context, string, domain.ExtractionOutcome) error {
	return nil
}

func (f *validateRepoFake) SaveValidation(_ context.Context, _ string, data domain.ExtractedData, notes string) error {
	f.saveCalls++
	f.savedData = data
	f.savedNotes = notes
	f.rec.Status = domain.StatusValidated
	f.rec.ExtractedData = data
	f.rec.ValidationNotes = notes
	return nil
}

func (f *validateRepoFake) Statistics(context.Context) (*domain.Statistics, error) { return nil, nil }

func corrections() domain.ExtractedData {
	return domain.ExtractedData{
		"vision_test": {
			"patient_name": "Jane Smith",
			"id_number":    "9001010000000",
			"right_eye":    "20/20",
		},
	}
}

func TestValidateSettlesNeedsValidationRecord(t *testing.T) {
	repo := &validateRepoFake{rec: &domain.DocumentRecord{
		ID:     "doc-1",
		Status: domain.StatusNeedsValidation,
	}}
	uc := NewValidateDocumentUseCase(repo, NewLocks())

	rec, err := uc.Validate(context.Background(), "doc-1", corrections(), "fixed patient name")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rec.Status != domain.StatusValidated {
		t.Fatalf("expected validated, got %s", rec.Status)
	}
	if repo.savedNotes != "fixed patient name" {
		t.Fatalf("notes not persisted: %q", repo.savedNotes)
	}
	if _, ok := repo.savedData["vision_test"]; !ok {
		t.Fatalf("corrected data not persisted: %v", repo.savedData)
	}
}

func TestValidateAcceptsExtractedRecord(t *testing.T) {
	repo := &validateRepoFake{rec: &domain.DocumentRecord{
		ID:     "doc-1",
		Status: domain.StatusExtracted,
	}}
	uc := NewValidateDocumentUseCase(repo, NewLocks())

	if _, err := uc.Validate(context.Background(), "doc-1", corrections(), ""); err != nil {
		t.Fatalf("Validate() on extracted record error = %v", err)
	}
}

func TestValidateRejectsUnsettledRecord(t *testing.T) {
	for _, status := range []domain.DocumentStatus{
		domain.StatusReceived,
		domain.StatusDetecting,
		domain.StatusExtracting,
		domain.StatusFailed,
	} {
		repo := &validateRepoFake{rec: &domain.DocumentRecord{ID: "doc-1", Status: status}}
		uc := NewValidateDocumentUseCase(repo, NewLocks())

		_, err := uc.Validate(context.Background(), "doc-1", corrections(), "")
		if !domain.IsKind(err, domain.ErrInvalidState) {
			t.Fatalf("status %s: expected invalid state error, got %v", status, err)
		}
		if repo.saveCalls != 0 {
			t.Fatalf("status %s: validation must not be persisted", status)
		}
	}
}

func TestValidateRepeatWithSameDataIsIdempotent(t *testing.T) {
	repo := &validateRepoFake{rec: &domain.DocumentRecord{
		ID:     "doc-1",
		Status: domain.StatusNeedsValidation,
	}}
	uc := NewValidateDocumentUseCase(repo, NewLocks())

	data := corrections()
	if _, err := uc.Validate(context.Background(), "doc-1", data, "first pass"); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	rec, err := uc.Validate(context.Background(), "doc-1", data, "first pass")
	if err != nil {
		t.Fatalf("repeated Validate() with identical data error = %v", err)
	}
	if rec.Status != domain.StatusValidated {
		t.Fatalf("expected validated, got %s", rec.Status)
	}
	if repo.saveCalls != 1 {
		t.Fatalf("idempotent repeat must not write again, got %d saves", repo.saveCalls)
	}
}

func TestValidateRepeatWithDifferentDataConflicts(t *testing.T) {
	repo := &validateRepoFake{rec: &domain.DocumentRecord{
		ID:     "doc-1",
		Status: domain.StatusNeedsValidation,
	}}
	uc := NewValidateDocumentUseCase(repo, NewLocks())

	if _, err := uc.Validate(context.Background(), "doc-1", corrections(), ""); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	other := domain.ExtractedData{"consent_form": {"signed": true}}
	_, err := uc.Validate(context.Background(), "doc-1", other, "")
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state conflict, got %v", err)
	}
}

func TestValidateRejectsEmptyData(t *testing.T) {
	uc := NewValidateDocumentUseCase(&validateRepoFake{}, NewLocks())
	_, err := uc.Validate(context.Background(), "doc-1", domain.ExtractedData{}, "")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateUnknownDocument(t *testing.T) {
	uc := NewValidateDocumentUseCase(&validateRepoFake{}, NewLocks())
	_, err := uc.Validate(context.Background(), "missing", corrections(), "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewLocks()
	counter := 0
	done := make(chan struct{})

	for i := 0; i < 50; i++ {
		go func() {
			unlock := locks.byID.Lock("same")
			counter++
			unlock()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if counter != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewLocks()
	unlockA := locks.byID.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlockB := locks.byID.Lock("b")
		unlockB()
		close(acquired)
	}()
	<-acquired
}
