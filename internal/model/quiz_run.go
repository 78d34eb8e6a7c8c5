package model

import "time"

// QuizRun 一次出题的持久化记录，会话缓存失效后据此重建时间索引
type QuizRun struct {
	ID        string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	VideoID   string             `gorm:"type:varchar(36);index;not null" json:"videoId"`
	Questions []Question         `gorm:"serializer:json;type:text" json:"-"`
	Manifest  GenerationManifest `gorm:"serializer:json;type:text" json:"manifest"`
	CreatedAt time.Time          `json:"createdAt"`
}

func (QuizRun) TableName() string {
	return "quiz_runs"
}
