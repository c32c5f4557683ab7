package usecase

import (
	"context"

	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
)

type StatisticsUseCase struct {
	repo ports.DocumentRepository
}

func NewStatisticsUseCase(repo ports.DocumentRepository) *StatisticsUseCase {
	return &StatisticsUseCase{repo: repo}
}

func (uc *StatisticsUseCase) Statistics(ctx context.Context) (*domain.Statistics, error) {
	return uc.repo.Statistics(ctx)
}
