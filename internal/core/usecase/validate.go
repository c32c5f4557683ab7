package usecase

import (
	"context"
	"fmt"
	"reflect"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
)

type ValidateDocumentUseCase struct {
	repo  ports.DocumentRepository
	locks *keyedMutex
}

func NewValidateDocumentUseCase(repo ports.DocumentRepository, locks *Locks) *ValidateDocumentUseCase {
	return &ValidateDocumentUseCase{repo: repo, locks: locks.byID}
}

// Validate overwrites the extracted data with human corrections and settles
// the record as validated. Legal only once extraction has finished; repeating
// the identical call on an already validated record is a no-op.
func (uc *ValidateDocumentUseCase) Validate(
	ctx context.Context,
	id string,
	data domain.ExtractedData,
	notes string,
) (*domain.DocumentRecord, error) {
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrValidation, "validate", fmt.Errorf("corrected data is required"))
	}

	unlock := uc.locks.Lock(id)
	defer unlock()

	rec, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.StatusExtracted, domain.StatusNeedsValidation:
	case domain.StatusValidated:
		if reflect.DeepEqual(rec.ExtractedData, data) {
			return rec, nil
		}
		return nil, domain.WrapError(domain.ErrInvalidState, "validate",
			fmt.Errorf("document %s already validated with different data", id))
	default:
		return nil, domain.WrapError(domain.ErrInvalidState, "validate",
			fmt.Errorf("document %s is %s, validation requires extraction to finish", id, rec.Status))
	}

	if err := uc.repo.SaveValidation(ctx, id, data, notes); err != nil {
		return nil, err
	}

	return uc.repo.GetByID(ctx, id)
}
