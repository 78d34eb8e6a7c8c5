package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// VideoStore 视频记录持久化
type VideoStore interface {
	Create(ctx context.Context, video *model.Video) error
	Update(ctx context.Context, video *model.Video) error
	FindByID(ctx context.Context, id string) (*model.Video, error)
	List(ctx context.Context, page, limit int) ([]model.Video, int64, error)
	Delete(ctx context.Context, id string) error
}

// UploadInput 本地上传的视频与字幕，两者至少提供一个；只有视频时从中提取内嵌字幕
type UploadInput struct {
	Title            string
	VideoFilename    string
	VideoPath        string
	SubtitleFilename string
	Subtitle         []byte
}

type VideoService struct {
	videos   VideoStore
	storage  *StorageService
	youtube  TranscriptSource
	sessions *SessionStore
	settings *PipelineSettings
	workDir  string

	// 视频级别的时间索引，供问答使用，只读
	indexes sync.Map

	probe   func(path string) (*util.VideoInfo, error)
	extract func(videoPath, outputPath string, streamIndex int) ([]byte, error)
}

func NewVideoService(videos VideoStore, storage *StorageService, youtube TranscriptSource, sessions *SessionStore, settings *PipelineSettings) *VideoService {
	return &VideoService{
		videos:   videos,
		storage:  storage,
		youtube:  youtube,
		sessions: sessions,
		settings: settings,
		workDir:  os.TempDir(),
		probe:    util.GetVideoInfo,
		extract:  util.ExtractSubtitles,
	}
}

// buildSegments 归一化字幕并切分，同时校验片段能构成合法的时间索引
func buildSegments(cues []model.SubtitleCue, cfg config.PipelineConfig) ([]model.Segment, *transcript.TemporalIndex, error) {
	segments := transcript.BuildSegments(cues, transcript.SegmentationConfigFrom(cfg))
	index, err := transcript.NewTemporalIndexFromSegments(segments)
	if err != nil {
		return nil, nil, err
	}
	return segments, index, nil
}

func (s *VideoService) IngestYouTube(ctx context.Context, url, title string) (*model.Video, error) {
	if s.youtube == nil {
		return nil, fmt.Errorf("%w: youtube source is not configured", util.ErrNoTranscriptSource)
	}

	cfg := s.settings.Snapshot()
	yt, err := s.youtube.FetchTranscript(ctx, url)
	if err != nil {
		return nil, err
	}

	cues, err := transcript.NormalizeCues(yt.Captions, cfg.MinCueDuration())
	if err != nil {
		return nil, err
	}
	segments, index, err := buildSegments(cues, cfg)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = yt.Title
	}
	video := &model.Video{
		Title:        title,
		SourceType:   model.VideoSourceYouTube,
		SourceURL:    url,
		VideoURL:     "https://www.youtube.com/watch?v=" + yt.ID,
		DurationMs:   yt.Duration.Milliseconds(),
		CueCount:     len(cues),
		SegmentCount: len(segments),
		Segments:     segments,
	}
	if video.DurationMs == 0 {
		video.DurationMs = segments[len(segments)-1].End.Milliseconds()
	}

	if err := s.videos.Create(ctx, video); err != nil {
		return nil, err
	}
	s.indexes.Store(video.ID, index)

	logger.Log.Info("YouTube video ingested",
		zap.String("videoId", video.ID),
		zap.String("youtubeId", yt.ID),
		zap.Int("cues", len(cues)),
		zap.Int("segments", len(segments)),
	)
	return video, nil
}

func (s *VideoService) IngestUpload(ctx context.Context, in UploadInput) (*model.Video, error) {
	cfg := s.settings.Snapshot()
	id := model.GenerateUUID()

	var (
		info *util.VideoInfo
		err  error
	)
	if in.VideoPath != "" {
		if info, err = s.probe(in.VideoPath); err != nil {
			logger.Log.Warn("Video probe failed", zap.String("file", in.VideoFilename), zap.Error(err))
		}
	}

	raw, subtitleName := in.Subtitle, in.SubtitleFilename
	if len(raw) == 0 {
		if info == nil || info.SubtitleStreams == 0 {
			return nil, util.ErrNoTranscriptSource
		}
		subtitleName = strings.TrimSuffix(filepath.Base(in.VideoFilename), filepath.Ext(in.VideoFilename)) + ".srt"
		out := filepath.Join(s.workDir, "video-quiz-"+id+".srt")
		defer os.Remove(out)
		if raw, err = s.extract(in.VideoPath, out, 0); err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrIngestion, err)
		}
	}

	format, err := transcript.DetectFormat(subtitleName, raw)
	if err != nil {
		return nil, err
	}
	cues, err := transcript.ParseSubtitles(raw, format, cfg.MinCueDuration())
	if err != nil {
		return nil, err
	}
	segments, index, err := buildSegments(cues, cfg)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		name := in.VideoFilename
		if name == "" {
			name = subtitleName
		}
		title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	video := &model.Video{
		UUIDBase:     model.UUIDBase{ID: id},
		Title:        title,
		SourceType:   model.VideoSourceLocal,
		CueCount:     len(cues),
		SegmentCount: len(segments),
		Segments:     segments,
		DurationMs:   segments[len(segments)-1].End.Milliseconds(),
	}
	if info != nil && info.Duration > 0 {
		video.DurationMs = model.Seconds(info.Duration).Milliseconds()
	}

	if err := s.storeFiles(ctx, video, in, subtitleName, raw); err != nil {
		return nil, err
	}

	if err := s.videos.Create(ctx, video); err != nil {
		s.deleteFiles(ctx, video)
		return nil, err
	}
	s.indexes.Store(video.ID, index)

	logger.Log.Info("Video ingested",
		zap.String("videoId", video.ID),
		zap.String("format", string(format)),
		zap.Int("cues", len(cues)),
		zap.Int("segments", len(segments)),
	)
	return video, nil
}

func (s *VideoService) storeFiles(ctx context.Context, video *model.Video, in UploadInput, subtitleName string, raw []byte) error {
	if s.storage == nil {
		return nil
	}

	if in.VideoPath != "" {
		key := fmt.Sprintf("videos/%s/%s", video.ID, filepath.Base(in.VideoFilename))
		url, err := s.storage.UploadFile(ctx, key, in.VideoPath, util.MimeVideo+strings.TrimPrefix(filepath.Ext(in.VideoFilename), "."))
		if err != nil {
			return fmt.Errorf("store video: %w", err)
		}
		video.VideoKey, video.VideoURL = key, url
	}

	key := fmt.Sprintf("subtitles/%s/%s", video.ID, filepath.Base(subtitleName))
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(raw), int64(len(raw)), util.MimeText)
	if err != nil {
		s.deleteFiles(ctx, video)
		return fmt.Errorf("store subtitles: %w", err)
	}
	video.SubtitleKey, video.SubtitleURL = key, url
	return nil
}

func (s *VideoService) deleteFiles(ctx context.Context, video *model.Video) {
	if s.storage == nil {
		return
	}
	for _, key := range []string{video.VideoKey, video.SubtitleKey} {
		if err := s.storage.Delete(ctx, key); err != nil {
			logger.Log.Warn("Failed to delete stored file", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *VideoService) Get(ctx context.Context, id string) (*model.Video, error) {
	return s.videos.FindByID(ctx, id)
}

func (s *VideoService) List(ctx context.Context, page, limit int) ([]model.Video, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.videos.List(ctx, page, limit)
}

func (s *VideoService) Segments(ctx context.Context, id string) ([]model.Segment, error) {
	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return video.Segments, nil
}

// SegmentIndex 视频级时间索引，首次访问时由已保存的片段构建
func (s *VideoService) SegmentIndex(ctx context.Context, id string) (*transcript.TemporalIndex, error) {
	if v, ok := s.indexes.Load(id); ok {
		return v.(*transcript.TemporalIndex), nil
	}

	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	index, err := transcript.NewTemporalIndexFromSegments(video.Segments)
	if err != nil {
		return nil, err
	}
	actual, _ := s.indexes.LoadOrStore(id, index)
	return actual.(*transcript.TemporalIndex), nil
}

func (s *VideoService) Delete(ctx context.Context, id string) error {
	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.videos.Delete(ctx, id); err != nil {
		return err
	}

	s.indexes.Delete(id)
	if s.sessions != nil {
		s.sessions.EvictVideo(id)
	}
	s.deleteFiles(ctx, video)

	logger.Log.Info("Video deleted", zap.String("videoId", id))
	return nil
}
