package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"github.com/kkdai/youtube/v2"
)

// YouTubeVideo 字幕来源返回的视频元数据与字幕条目
type YouTubeVideo struct {
	ID       string
	Title    string
	Duration time.Duration
	Captions []model.CaptionEntry
}

// TranscriptSource 远端字幕来源
type TranscriptSource interface {
	FetchTranscript(ctx context.Context, url string) (*YouTubeVideo, error)
}

type YouTubeTranscriptService struct {
	client   *youtube.Client
	language string
}

func NewYouTubeTranscriptService(language string, timeout time.Duration) *YouTubeTranscriptService {
	if language == "" {
		language = "en"
	}
	return &YouTubeTranscriptService{
		client:   &youtube.Client{HTTPClient: &http.Client{Timeout: timeout}},
		language: language,
	}
}

// ExtractYouTubeID 支持 watch?v=、youtu.be/、embed/ 等链接以及裸视频 ID
func ExtractYouTubeID(url string) (string, error) {
	id, err := youtube.ExtractVideoID(url)
	if err != nil {
		return "", fmt.Errorf("%w: %s", util.ErrInvalidYouTubeURL, url)
	}
	return id, nil
}

func (s *YouTubeTranscriptService) FetchTranscript(ctx context.Context, url string) (*YouTubeVideo, error) {
	id, err := ExtractYouTubeID(url)
	if err != nil {
		return nil, err
	}

	video, err := s.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch youtube video %s: %w", id, err)
	}

	segments, err := s.client.GetTranscriptCtx(ctx, video, s.language)
	if errors.Is(err, youtube.ErrTranscriptDisabled) {
		return nil, fmt.Errorf("%w: transcript disabled for %s", util.ErrNoTranscriptSource, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch transcript for %s: %v", util.ErrIngestion, id, err)
	}

	entries := make([]model.CaptionEntry, 0, len(segments))
	for _, seg := range segments {
		start := model.Ms(int64(seg.StartMs))
		entries = append(entries, model.CaptionEntry{
			Start: start,
			End:   start + model.Ms(int64(seg.Duration)),
			Text:  seg.Text,
		})
	}

	return &YouTubeVideo{
		ID:       id,
		Title:    video.Title,
		Duration: video.Duration,
		Captions: entries,
	}, nil
}
