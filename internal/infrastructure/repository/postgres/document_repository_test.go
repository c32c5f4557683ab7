package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/surgiscan/docintake/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func recordColumns() []string {
	return []string{
		"id", "filename", "content_hash", "storage_path", "mode", "status",
		"document_types", "extracted_data", "type_errors", "confidence",
		"needs_validation", "validation_notes", "validated_at",
		"processing_summary", "failure_reason", "retain_file", "uploaded_at", "updated_at",
	}
}

func sampleRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(recordColumns()).AddRow(
		"doc-1", "scan.pdf", "abc123", "doc-1_scan.pdf", "smart", "extracted",
		[]byte(`["vision_test"]`), []byte(`{"vision_test":{"patient_name":"Jane"}}`), []byte(`{}`),
		0.92, false, "", nil, []byte(`{"mode":"smart"}`), "", true, now, now,
	)
}

func TestGetByIDScansRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, content_hash").
		WithArgs("doc-1").
		WillReturnRows(sampleRows())

	rec, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.Status != domain.StatusExtracted {
		t.Fatalf("expected extracted, got %s", rec.Status)
	}
	if rec.Mode != domain.ModeSmart {
		t.Fatalf("expected smart mode, got %s", rec.Mode)
	}
	if rec.ExtractedData["vision_test"]["patient_name"] != "Jane" {
		t.Fatalf("extracted data not decoded: %v", rec.ExtractedData)
	}
	if rec.ValidatedAt != nil {
		t.Fatalf("null validated_at must scan to nil, got %v", rec.ValidatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, content_hash").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByContentHashMissIsNotAnError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, content_hash").
		WithArgs("no-such-hash").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.FindByContentHash(context.Background(), "no-such-hash")
	if err != nil {
		t.Fatalf("FindByContentHash() error = %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record on miss, got %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByContentHashSkipsFailedRecords(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`status <> 'failed'`).
		WithArgs("abc123").
		WillReturnRows(sampleRows())

	rec, err := repo.FindByContentHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FindByContentHash() error = %v", err)
	}
	if rec == nil || rec.ID != "doc-1" {
		t.Fatalf("expected live record, got %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE historic_documents").
		WithArgs("missing", string(domain.StatusDetecting), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusDetecting, "")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveExtractionPersistsOutcome(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE historic_documents").
		WithArgs("doc-1", string(domain.StatusNeedsValidation),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			0.62, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveExtraction(context.Background(), "doc-1", domain.ExtractionOutcome{
		Status:          domain.StatusNeedsValidation,
		TypesFound:      []string{"vision_test"},
		Data:            domain.ExtractedData{"vision_test": {"patient_name": "Jane"}},
		TypeErrors:      map[string]string{"consent_form": "timeout"},
		Confidence:      0.62,
		NeedsValidation: true,
	})
	if err != nil {
		t.Fatalf("SaveExtraction() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveValidationReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE historic_documents").
		WithArgs("missing", string(domain.StatusValidated), sqlmock.AnyArg(), "note", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveValidation(context.Background(), "missing",
		domain.ExtractedData{"vision_test": {"patient_name": "Jane"}}, "note")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatisticsAggregates(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("extracted", 4).
			AddRow("needs_validation", 2).
			AddRow("validated", 3).
			AddRow("failed", 1))
	mock.ExpectQuery("SELECT mode, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"mode", "count"}).
			AddRow("smart", 8).
			AddRow("fast", 2))
	mock.ExpectQuery("SELECT t.value, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"value", "count"}).
			AddRow("vision_test", 5).
			AddRow("certificate_of_fitness", 4))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("extracted", "needs_validation", "validated").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(0.87))

	stats, err := repo.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalDocuments != 10 {
		t.Fatalf("expected 10 total, got %d", stats.TotalDocuments)
	}
	if stats.ValidationBacklog != 2 || stats.Validated != 3 {
		t.Fatalf("unexpected validation counters: %+v", stats)
	}
	if stats.ModeBreakdown["smart"] != 8 {
		t.Fatalf("unexpected mode breakdown: %v", stats.ModeBreakdown)
	}
	if stats.DocumentTypeCounts["vision_test"] != 5 {
		t.Fatalf("unexpected type counts: %v", stats.DocumentTypeCounts)
	}
	if stats.AverageConfidence != 0.87 {
		t.Fatalf("unexpected average confidence: %v", stats.AverageConfidence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
