package repository

import (
	"context"
	"errors"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormCrewRepository reads the company's employee roster from PostgreSQL.
type GormCrewRepository struct {
	db *gorm.DB
}

// NewGormCrewRepository creates a new GORM crew roster repository.
func NewGormCrewRepository(db *gorm.DB) repository.CrewRepository {
	return &GormCrewRepository{db: db}
}

// CrewMembers GORM model for database mapping
type CrewMembers struct {
	gorm.Model
	MemberID string `gorm:"column:member_id;uniqueIndex"`
	Name     string `gorm:"column:name"`
	Active   bool   `gorm:"column:active"`
}

// TableName overrides the default table name
func (CrewMembers) TableName() string {
	return "crew_members"
}

// FindByID finds a roster member by their public id.
func (r *GormCrewRepository) FindByID(ctx context.Context, id string) (*entity.CrewMember, error) {
	var member CrewMembers
	result := r.db.WithContext(ctx).Where("member_id = ?", id).First(&member)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return toEntity(&member), nil
}

// ListActive returns every roster member currently employable.
func (r *GormCrewRepository) ListActive(ctx context.Context) ([]*entity.CrewMember, error) {
	var members []CrewMembers
	result := r.db.WithContext(ctx).Where("active = ?", true).Find(&members)
	if result.Error != nil {
		return nil, result.Error
	}

	var entities []*entity.CrewMember
	for i := range members {
		entities = append(entities, toEntity(&members[i]))
	}
	return entities, nil
}

func toEntity(m *CrewMembers) *entity.CrewMember {
	return &entity.CrewMember{
		ID:        m.MemberID,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
