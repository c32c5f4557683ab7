package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
)

type ProcessConfig struct {
	ConfidenceThreshold float64
	MaxConcurrent       int64
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	detector  ports.DocumentDetector
	extractor ports.FieldExtractor
	locks     *keyedMutex
	sem       *semaphore.Weighted
	cfg       ProcessConfig
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	detector ports.DocumentDetector,
	extractor ports.FieldExtractor,
	locks *Locks,
	cfg ProcessConfig,
) *ProcessDocumentUseCase {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.8
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		detector:  detector,
		extractor: extractor,
		locks:     locks.byID,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:       cfg,
	}
}

// modePlan is the dispatch entry for one processing mode: whether to detect,
// whether detection failure is fatal, and how to select the types to extract
// from the detection result.
type modePlan struct {
	detect         bool
	detectionFatal bool
	extract        bool
	selectTypes    func(detected []domain.DocumentType) []domain.DocumentType
}

var modePlans = map[domain.ProcessingMode]modePlan{
	domain.ModeSmart: {
		detect:  true,
		extract: true,
		selectTypes: func(detected []domain.DocumentType) []domain.DocumentType {
			if len(detected) > 0 {
				return detected
			}
			return domain.CommonTypes()
		},
	},
	domain.ModeFast: {
		extract: true,
		selectTypes: func([]domain.DocumentType) []domain.DocumentType {
			return domain.CommonTypes()
		},
	},
	domain.ModeExtractAll: {
		extract: true,
		selectTypes: func([]domain.DocumentType) []domain.DocumentType {
			return domain.AllTypes()
		},
	},
	domain.ModeDetectOnly: {
		detect:         true,
		detectionFatal: true,
	},
}

// ProcessByID drives one received document through detection and extraction.
// Concurrent passes are bounded by the semaphore; passes for the same id are
// serialized by the per-id lock shared with validation.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire processing slot: %w", err)
	}
	defer uc.sem.Release(1)

	unlock := uc.locks.Lock(documentID)
	defer unlock()

	rec, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if rec.Status != domain.StatusReceived {
		// Duplicate delivery or a concurrent pass already handled it.
		return nil
	}

	plan, ok := modePlans[rec.Mode]
	if !ok {
		err := domain.WrapError(domain.ErrValidation, "process", fmt.Errorf("unknown mode %q", rec.Mode))
		return uc.markFailed(ctx, rec, err)
	}

	start := time.Now()

	payload, err := uc.loadPayload(ctx, rec)
	if err != nil {
		return uc.markFailed(ctx, rec, err)
	}

	if err := uc.transition(ctx, rec, domain.StatusDetecting); err != nil {
		return err
	}

	outcome, err := uc.run(ctx, rec, plan, payload, start)
	if err != nil {
		return uc.markFailed(ctx, rec, err)
	}

	if err := uc.repo.SaveExtraction(ctx, rec.ID, outcome); err != nil {
		return err
	}

	uc.cleanupPayload(ctx, rec)
	return nil
}

func (uc *ProcessDocumentUseCase) run(
	ctx context.Context,
	rec *domain.DocumentRecord,
	plan modePlan,
	payload []byte,
	start time.Time,
) (domain.ExtractionOutcome, error) {
	apiCalls := 0

	var detection domain.Detection
	detectedCount := 0
	if plan.detect {
		apiCalls++
		result, err := uc.detector.Detect(ctx, payload, rec.Filename)
		switch {
		case err == nil:
			detection = result
			detectedCount = len(result.Types)
		case plan.detectionFatal:
			return domain.ExtractionOutcome{}, fmt.Errorf("detect document types: %w", err)
		default:
			// Smart mode falls back to the common set instead of failing.
			detection = domain.Detection{}
		}
	}

	if !plan.extract {
		return uc.detectionOutcome(rec, detection, apiCalls, start), nil
	}

	if err := uc.transition(ctx, rec, domain.StatusExtracting); err != nil {
		return domain.ExtractionOutcome{}, err
	}

	targets := plan.selectTypes(detection.Types)
	data := domain.ExtractedData{}
	typeErrors := map[string]string{}

	for _, docType := range targets {
		if !docType.Supported() {
			continue
		}
		apiCalls++
		fields, err := uc.extractor.Extract(ctx, payload, rec.Filename, docType)
		if err != nil {
			typeErrors[string(docType)] = err.Error()
			continue
		}
		meaningful := domain.MeaningfulFields(fields)
		if len(meaningful) < docType.MinMeaningfulFields() {
			continue
		}
		data[string(docType)] = meaningful
	}

	if len(data) == 0 {
		return domain.ExtractionOutcome{}, domain.WrapError(
			domain.ErrUpstreamRejected,
			"extract",
			fmt.Errorf("no document type yielded data (attempted %d, failed %d)", len(targets), len(typeErrors)),
		)
	}

	confidence := domain.ConfidenceScore(data)
	needsValidation := domain.NeedsValidation(data, confidence, detectedCount, uc.cfg.ConfidenceThreshold)

	status := domain.StatusExtracted
	if needsValidation {
		status = domain.StatusNeedsValidation
	}

	typesFound := make([]string, 0, len(data))
	totalFields := 0
	for docType, fields := range data {
		typesFound = append(typesFound, docType)
		totalFields += len(fields)
	}

	return domain.ExtractionOutcome{
		Status:          status,
		TypesFound:      typesFound,
		Data:            data,
		TypeErrors:      typeErrors,
		Confidence:      confidence,
		NeedsValidation: needsValidation,
		Summary: domain.ProcessingSummary{
			Mode:                  rec.Mode,
			TypesAttempted:        len(targets),
			SuccessfulExtractions: len(data),
			TotalFields:           totalFields,
			ProcessingMS:          time.Since(start).Milliseconds(),
			APICalls:              apiCalls,
			PageCount:             rec.Summary.PageCount,
		},
	}, nil
}

// detectionOutcome settles a detect_only pass: the detected tags and the
// upstream detection confidence stand in for extraction results.
func (uc *ProcessDocumentUseCase) detectionOutcome(
	rec *domain.DocumentRecord,
	detection domain.Detection,
	apiCalls int,
	start time.Time,
) domain.ExtractionOutcome {
	typesFound := make([]string, 0, len(detection.Types))
	for _, docType := range detection.Types {
		typesFound = append(typesFound, string(docType))
	}

	needsValidation := detection.Confidence < uc.cfg.ConfidenceThreshold || len(typesFound) > 1
	status := domain.StatusExtracted
	if needsValidation {
		status = domain.StatusNeedsValidation
	}

	return domain.ExtractionOutcome{
		Status:          status,
		TypesFound:      typesFound,
		Data:            domain.ExtractedData{},
		Confidence:      detection.Confidence,
		NeedsValidation: needsValidation,
		Summary: domain.ProcessingSummary{
			Mode:           rec.Mode,
			TypesAttempted: len(typesFound),
			ProcessingMS:   time.Since(start).Milliseconds(),
			APICalls:       apiCalls,
			PageCount:      rec.Summary.PageCount,
		},
	}
}

func (uc *ProcessDocumentUseCase) loadPayload(ctx context.Context, rec *domain.DocumentRecord) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, rec.StoragePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "open payload", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "read payload", err)
	}
	return payload, nil
}

func (uc *ProcessDocumentUseCase) transition(ctx context.Context, rec *domain.DocumentRecord, to domain.DocumentStatus) error {
	if !domain.CanTransition(rec.Status, to) {
		return domain.WrapError(domain.ErrInvalidState, "transition",
			fmt.Errorf("%s -> %s is not a legal transition", rec.Status, to))
	}
	if err := uc.repo.UpdateStatus(ctx, rec.ID, to, ""); err != nil {
		return err
	}
	rec.Status = to
	return nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, rec *domain.DocumentRecord, processErr error) error {
	if processErr == nil {
		return nil
	}
	if failErr := uc.repo.UpdateStatus(ctx, rec.ID, domain.StatusFailed, processErr.Error()); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	uc.cleanupPayload(ctx, rec)
	return processErr
}

// cleanupPayload removes the stored source file after a settled pass when
// retention was not requested. Best effort: a leftover file is preferable to
// failing a finished document.
func (uc *ProcessDocumentUseCase) cleanupPayload(ctx context.Context, rec *domain.DocumentRecord) {
	if rec.RetainFile {
		return
	}
	_ = uc.storage.Delete(ctx, rec.StoragePath)
}
