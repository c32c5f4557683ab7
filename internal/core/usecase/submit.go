package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
)

type SubmitConfig struct {
	MaxFileBytes      int64
	AllowedExtensions []string
}

type SubmitDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	inspector ports.PayloadInspector
	cfg       SubmitConfig
}

func NewSubmitDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	inspector ports.PayloadInspector,
	cfg SubmitConfig,
) *SubmitDocumentUseCase {
	return &SubmitDocumentUseCase{
		repo:      repo,
		storage:   storage,
		queue:     queue,
		inspector: inspector,
		cfg:       cfg,
	}
}

// Submit validates the upload, deduplicates by content hash, stores the
// payload and creates the record in received state. Processing itself is
// asynchronous: a queue event hands the id to a worker.
//
// Dedup only considers live records: a failed document is reprocessed as a
// fresh submission, and a record still stuck in received gets its queue event
// published again in case the original handoff was lost.
func (uc *SubmitDocumentUseCase) Submit(ctx context.Context, input ports.SubmitInput) (*domain.DocumentRecord, bool, error) {
	if err := uc.validateInput(input); err != nil {
		return nil, false, err
	}

	payload, err := uc.readPayload(input)
	if err != nil {
		return nil, false, err
	}

	hash := sha256.Sum256(payload)
	contentHash := hex.EncodeToString(hash[:])

	if existing, err := uc.repo.FindByContentHash(ctx, contentHash); err != nil {
		return nil, false, err
	} else if existing != nil {
		if existing.Status == domain.StatusReceived {
			if err := uc.queue.PublishDocumentReceived(ctx, existing.ID); err != nil {
				return nil, false, err
			}
		}
		return existing, true, nil
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(input.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(payload)); err != nil {
		return nil, false, domain.WrapError(domain.ErrPersistence, "save payload", err)
	}

	pageCount := 0
	if uc.inspector != nil {
		if pages, err := uc.inspector.PageCount(payload, input.Filename); err == nil {
			pageCount = pages
		}
	}

	rec := &domain.DocumentRecord{
		ID:                 id,
		Filename:           input.Filename,
		ContentHash:        contentHash,
		StoragePath:        storageKey,
		Mode:               input.Mode,
		Status:             domain.StatusReceived,
		DocumentTypesFound: []string{},
		ExtractedData:      domain.ExtractedData{},
		Summary: domain.ProcessingSummary{
			Mode:      input.Mode,
			PageCount: pageCount,
		},
		RetainFile: input.Persist,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, false, err
	}

	if err := uc.queue.PublishDocumentReceived(ctx, rec.ID); err != nil {
		return nil, false, err
	}

	return rec, false, nil
}

func (uc *SubmitDocumentUseCase) validateInput(input ports.SubmitInput) error {
	if strings.TrimSpace(input.Filename) == "" {
		return domain.WrapError(domain.ErrValidation, "submit", fmt.Errorf("filename is required"))
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.Filename), "."))
	if !uc.extensionAllowed(ext) {
		return domain.WrapError(domain.ErrValidation, "submit",
			fmt.Errorf("file type %q not allowed, supported: %s", ext, strings.Join(uc.cfg.AllowedExtensions, ", ")))
	}
	return nil
}

func (uc *SubmitDocumentUseCase) extensionAllowed(ext string) bool {
	for _, allowed := range uc.cfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (uc *SubmitDocumentUseCase) readPayload(input ports.SubmitInput) ([]byte, error) {
	limit := uc.cfg.MaxFileBytes
	payload, err := io.ReadAll(io.LimitReader(input.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(payload) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "submit", fmt.Errorf("empty file"))
	}
	if int64(len(payload)) > limit {
		return nil, domain.WrapError(domain.ErrValidation, "submit",
			fmt.Errorf("file exceeds maximum size of %d bytes", limit))
	}
	return payload, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
