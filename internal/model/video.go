package model

type VideoSourceType string

const (
	VideoSourceLocal   VideoSourceType = "local"
	VideoSourceYouTube VideoSourceType = "youtube"
)

// Video 视频及其解析后的字幕片段
type Video struct {
	UUIDBase
	Title        string          `gorm:"size:255;not null" json:"title"`
	SourceType   VideoSourceType `gorm:"size:20;not null" json:"sourceType"`
	SourceURL    string          `gorm:"size:500" json:"sourceUrl"`
	VideoURL     string          `gorm:"size:500" json:"videoUrl"`
	SubtitleURL  string          `gorm:"size:500" json:"subtitleUrl"`
	VideoKey     string          `gorm:"size:500" json:"-"`
	SubtitleKey  string          `gorm:"size:500" json:"-"`
	DurationMs   int64           `json:"durationMs"`
	CueCount     int             `json:"cueCount"`
	SegmentCount int             `json:"segmentCount"`
	Segments     []Segment       `gorm:"serializer:json;type:text" json:"-"`
}

func (Video) TableName() string {
	return "videos"
}
