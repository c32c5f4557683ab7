package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/surgiscan/docintake/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS historic_documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	document_types JSONB NOT NULL DEFAULT '[]'::jsonb,
	extracted_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	type_errors JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_validation BOOLEAN NOT NULL DEFAULT FALSE,
	validation_notes TEXT NOT NULL DEFAULT '',
	validated_at TIMESTAMPTZ,
	processing_summary JSONB NOT NULL DEFAULT '{}'::jsonb,
	failure_reason TEXT NOT NULL DEFAULT '',
	retain_file BOOLEAN NOT NULL DEFAULT TRUE,
	uploaded_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_historic_documents_status ON historic_documents(status);
CREATE INDEX IF NOT EXISTS idx_historic_documents_content_hash ON historic_documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_historic_documents_uploaded_at ON historic_documents(uploaded_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentColumns = `id, filename, content_hash, storage_path, mode, status, document_types, extracted_data, type_errors, confidence, needs_validation, validation_notes, validated_at, processing_summary, failure_reason, retain_file, uploaded_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, rec *domain.DocumentRecord) error {
	typesJSON, dataJSON, errorsJSON, summaryJSON, err := marshalRecordJSON(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO historic_documents (`+documentColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`,
		rec.ID, rec.Filename, rec.ContentHash, rec.StoragePath, string(rec.Mode), string(rec.Status),
		typesJSON, dataJSON, errorsJSON, rec.ConfidenceScore, rec.NeedsValidation, rec.ValidationNotes,
		rec.ValidatedAt, summaryJSON, rec.FailureReason, rec.RetainFile, rec.UploadedAt, rec.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert document", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM historic_documents
WHERE id = $1
`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %s", id))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "get document", err)
	}
	return rec, nil
}

// FindByContentHash returns the most recent live record carrying the hash.
// Failed records do not count: resubmitting their bytes starts over.
func (r *DocumentRepository) FindByContentHash(ctx context.Context, hash string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM historic_documents
WHERE content_hash = $1 AND status <> 'failed'
ORDER BY uploaded_at DESC
LIMIT 1
`, hash)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrPersistence, "find by content hash", err)
	}
	return rec, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, failureReason string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE historic_documents
SET status = $2, failure_reason = $3, updated_at = $4
WHERE id = $1
`, id, string(status), failureReason, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "update document status", err)
	}
	return requireRow(res, "update document status", id)
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, outcome domain.ExtractionOutcome) error {
	dataJSON, err := json.Marshal(outcome.Data)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	typesJSON, err := json.Marshal(outcome.TypesFound)
	if err != nil {
		return fmt.Errorf("marshal document types: %w", err)
	}
	errorsJSON, err := json.Marshal(outcome.TypeErrors)
	if err != nil {
		return fmt.Errorf("marshal type errors: %w", err)
	}
	summaryJSON, err := json.Marshal(outcome.Summary)
	if err != nil {
		return fmt.Errorf("marshal processing summary: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE historic_documents
SET status = $2, document_types = $3, extracted_data = $4, type_errors = $5,
    confidence = $6, needs_validation = $7, processing_summary = $8, updated_at = $9
WHERE id = $1
`, id, string(outcome.Status), typesJSON, dataJSON, errorsJSON,
		outcome.Confidence, outcome.NeedsValidation, summaryJSON, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save extraction", err)
	}
	return requireRow(res, "save extraction", id)
}

func (r *DocumentRepository) SaveValidation(ctx context.Context, id string, data domain.ExtractedData, notes string) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal corrected data: %w", err)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE historic_documents
SET status = $2, extracted_data = $3, validation_notes = $4, needs_validation = FALSE,
    validated_at = $5, updated_at = $5
WHERE id = $1
`, id, string(domain.StatusValidated), dataJSON, notes, now)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save validation", err)
	}
	return requireRow(res, "save validation", id)
}

func (r *DocumentRepository) Statistics(ctx context.Context) (*domain.Statistics, error) {
	stats := &domain.Statistics{
		StatusBreakdown:    map[string]int{},
		ModeBreakdown:      map[string]int{},
		DocumentTypeCounts: map[string]int{},
		LastUpdated:        time.Now().UTC(),
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT status, COUNT(*)
FROM historic_documents
GROUP BY status
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "count by status", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan status count", err)
		}
		stats.StatusBreakdown[status] = count
		stats.TotalDocuments += count
		switch status {
		case string(domain.StatusNeedsValidation):
			stats.ValidationBacklog = count
		case string(domain.StatusValidated):
			stats.Validated = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate status counts", err)
	}

	modeRows, err := r.db.QueryContext(ctx, `
SELECT mode, COUNT(*)
FROM historic_documents
GROUP BY mode
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "count by mode", err)
	}
	defer modeRows.Close()

	for modeRows.Next() {
		var mode string
		var count int
		if err := modeRows.Scan(&mode, &count); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan mode count", err)
		}
		stats.ModeBreakdown[mode] = count
	}
	if err := modeRows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate mode counts", err)
	}

	typeRows, err := r.db.QueryContext(ctx, `
SELECT t.value, COUNT(*)
FROM historic_documents, jsonb_array_elements_text(document_types) AS t(value)
GROUP BY t.value
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "count by document type", err)
	}
	defer typeRows.Close()

	for typeRows.Next() {
		var docType string
		var count int
		if err := typeRows.Scan(&docType, &count); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan type count", err)
		}
		stats.DocumentTypeCounts[docType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate type counts", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT COALESCE(AVG(confidence), 0)
FROM historic_documents
WHERE status IN ($1, $2, $3)
`, string(domain.StatusExtracted), string(domain.StatusNeedsValidation), string(domain.StatusValidated))
	if err := row.Scan(&stats.AverageConfidence); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "average confidence", err)
	}

	return stats, nil
}

func requireRow(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("document %s", id))
	}
	return nil
}

func marshalRecordJSON(rec *domain.DocumentRecord) (types, data, typeErrors, summary []byte, err error) {
	if types, err = json.Marshal(rec.DocumentTypesFound); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal document types: %w", err)
	}
	if data, err = json.Marshal(rec.ExtractedData); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal extracted data: %w", err)
	}
	if typeErrors, err = json.Marshal(rec.TypeErrors); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal type errors: %w", err)
	}
	if summary, err = json.Marshal(rec.Summary); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal processing summary: %w", err)
	}
	return types, data, typeErrors, summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var mode, status string
	var typesRaw, dataRaw, errorsRaw, summaryRaw []byte
	var validatedAt sql.NullTime

	if err := row.Scan(
		&rec.ID, &rec.Filename, &rec.ContentHash, &rec.StoragePath, &mode, &status,
		&typesRaw, &dataRaw, &errorsRaw, &rec.ConfidenceScore, &rec.NeedsValidation,
		&rec.ValidationNotes, &validatedAt, &summaryRaw, &rec.FailureReason,
		&rec.RetainFile, &rec.UploadedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(typesRaw, &rec.DocumentTypesFound); err != nil {
		return nil, fmt.Errorf("unmarshal document types: %w", err)
	}
	if err := json.Unmarshal(dataRaw, &rec.ExtractedData); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	if err := json.Unmarshal(errorsRaw, &rec.TypeErrors); err != nil {
		return nil, fmt.Errorf("unmarshal type errors: %w", err)
	}
	if err := json.Unmarshal(summaryRaw, &rec.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal processing summary: %w", err)
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		rec.ValidatedAt = &t
	}
	rec.Mode = domain.ProcessingMode(mode)
	rec.Status = domain.DocumentStatus(status)
	return &rec, nil
}
