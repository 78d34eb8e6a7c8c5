package repository

import (
	"context"
	"errors"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"gorm.io/gorm"
)

type QuizRunRepository struct {
	DB *gorm.DB
}

func NewQuizRunRepository(db *gorm.DB) *QuizRunRepository {
	return &QuizRunRepository{DB: db}
}

func (r *QuizRunRepository) Create(ctx context.Context, run *model.QuizRun) error {
	return r.DB.WithContext(ctx).Create(run).Error
}

func (r *QuizRunRepository) FindByID(ctx context.Context, id string) (*model.QuizRun, error) {
	var run model.QuizRun
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *QuizRunRepository) ListByVideo(ctx context.Context, videoID string) ([]model.QuizRun, error) {
	var runs []model.QuizRun
	err := r.DB.WithContext(ctx).
		Omit("questions").
		Where("video_id = ?", videoID).
		Order("created_at desc").
		Find(&runs).Error
	return runs, err
}
