package repository

import (
	"context"

	"workorder-service/internal/domain/entity"
)

// CrewRepository is a read view over the company's employee roster.
type CrewRepository interface {
	FindByID(ctx context.Context, id string) (*entity.CrewMember, error)
	ListActive(ctx context.Context) ([]*entity.CrewMember, error)
}
