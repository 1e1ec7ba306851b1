package repository

import (
	"context"
	"errors"

	"github.com/cahierdetextes/backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type logbookRepository struct {
	db *gorm.DB
}

// NewLogbookRepository 创建记事本仓储
func NewLogbookRepository(db *gorm.DB) LogbookRepository {
	return &logbookRepository{db: db}
}

func (r *logbookRepository) Get(ctx context.Context, instanceID string) (*model.Logbook, error) {
	var logbook model.Logbook
	err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&logbook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &logbook, nil
}

func (r *logbookRepository) Save(ctx context.Context, logbook *model.Logbook) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(logbook).Error
}

func (r *logbookRepository) List(ctx context.Context) ([]model.Logbook, error) {
	var logbooks []model.Logbook
	err := r.db.WithContext(ctx).
		Select("id", "instance_id", "created_at", "updated_at").
		Order("updated_at desc").
		Find(&logbooks).Error
	return logbooks, err
}

func (r *logbookRepository) Delete(ctx context.Context, instanceID string) error {
	result := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).Delete(&model.Logbook{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
