package repository

import (
	"context"
	"errors"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"gorm.io/gorm"
)

type VideoRepository struct {
	DB *gorm.DB
}

func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{DB: db}
}

func (r *VideoRepository) Create(ctx context.Context, video *model.Video) error {
	return r.DB.WithContext(ctx).Create(video).Error
}

func (r *VideoRepository) Update(ctx context.Context, video *model.Video) error {
	return r.DB.WithContext(ctx).Save(video).Error
}

// FindByID 包含片段数据，不存在时返回 util.ErrVideoNotFound
func (r *VideoRepository) FindByID(ctx context.Context, id string) (*model.Video, error) {
	var video model.Video
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// List 列表不加载片段数据
func (r *VideoRepository) List(ctx context.Context, page, limit int) ([]model.Video, int64, error) {
	var (
		videos []model.Video
		total  int64
	)

	db := r.DB.WithContext(ctx).Model(&model.Video{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Omit("segments").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&videos).Error
	return videos, total, err
}

// Delete 同时删除该视频的出题记录
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&model.QuizRun{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Video{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrVideoNotFound
		}
		return nil
	})
}
