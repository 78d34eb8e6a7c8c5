package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lectureSRT = `1
00:00:01,000 --> 00:00:04,000
Hello and welcome.

2
00:00:04,500 --> 00:00:08,000
Today we talk about Go.

3
00:00:30,000 --> 00:00:33,000
After the break, channels.
`

type fakeTranscriptSource struct {
	video *YouTubeVideo
	err   error
}

func (f fakeTranscriptSource) FetchTranscript(ctx context.Context, url string) (*YouTubeVideo, error) {
	return f.video, f.err
}

func newTestVideoService(t *testing.T, youtube TranscriptSource) (*VideoService, *memoryVideoStore, string) {
	t.Helper()
	root := t.TempDir()
	store := newMemoryVideoStore()
	storage := &StorageService{Provider: &LocalStorageProvider{Root: root}}
	svc := NewVideoService(store, storage, youtube, NewSessionStore(newMemoryRunStore(), store), testSettings(nil))
	svc.workDir = t.TempDir()
	return svc, store, root
}

func TestIngestUploadSubtitleFile(t *testing.T) {
	svc, store, root := newTestVideoService(t, nil)
	ctx := context.Background()

	video, err := svc.IngestUpload(ctx, UploadInput{SubtitleFilename: "lecture.srt", Subtitle: []byte(lectureSRT)})
	require.NoError(t, err)

	assert.Equal(t, "lecture", video.Title)
	assert.Equal(t, model.VideoSourceLocal, video.SourceType)
	assert.Equal(t, 3, video.CueCount)
	require.Equal(t, 2, video.SegmentCount)
	assert.Equal(t, int64(33000), video.DurationMs)
	assert.Equal(t, "/uploads/subtitles/"+video.ID+"/lecture.srt", video.SubtitleURL)

	stored, err := os.ReadFile(filepath.Join(root, "subtitles", video.ID, "lecture.srt"))
	require.NoError(t, err)
	assert.Equal(t, lectureSRT, string(stored))

	segments, err := svc.Segments(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Ms(1000), segments[0].Start)
	assert.Equal(t, model.Ms(8000), segments[0].End)
	assert.Equal(t, model.Ms(30000), segments[1].Start)

	_, err = store.FindByID(ctx, video.ID)
	assert.NoError(t, err)
}

func TestIngestUploadExtractsEmbeddedSubtitles(t *testing.T) {
	svc, _, _ := newTestVideoService(t, nil)
	svc.storage = nil
	svc.probe = func(path string) (*util.VideoInfo, error) {
		return &util.VideoInfo{Duration: 40, SubtitleStreams: 1}, nil
	}
	var extractedTo string
	svc.extract = func(videoPath, outputPath string, streamIndex int) ([]byte, error) {
		extractedTo = outputPath
		return []byte(lectureSRT), nil
	}

	video, err := svc.IngestUpload(context.Background(), UploadInput{
		Title:         "Intro to Go",
		VideoFilename: "intro.mp4",
		VideoPath:     "/videos/intro.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", video.Title)
	assert.Equal(t, int64(40000), video.DurationMs)
	assert.Equal(t, 2, video.SegmentCount)
	assert.Equal(t, svc.workDir, filepath.Dir(extractedTo))
}

func TestIngestUploadWithoutTranscript(t *testing.T) {
	svc, _, _ := newTestVideoService(t, nil)
	svc.probe = func(path string) (*util.VideoInfo, error) {
		return &util.VideoInfo{Duration: 40}, nil
	}

	_, err := svc.IngestUpload(context.Background(), UploadInput{VideoFilename: "silent.mp4", VideoPath: "/videos/silent.mp4"})
	assert.ErrorIs(t, err, util.ErrNoTranscriptSource)

	_, err = svc.IngestUpload(context.Background(), UploadInput{SubtitleFilename: "notes.txt", Subtitle: []byte("just some notes")})
	assert.ErrorIs(t, err, util.ErrUnsupportedFormat)
}

func TestIngestYouTube(t *testing.T) {
	source := fakeTranscriptSource{video: &YouTubeVideo{
		ID:       "dQw4w9WgXcQ",
		Title:    "Channels explained",
		Duration: 2 * time.Minute,
		Captions: []model.CaptionEntry{
			{Start: model.Ms(0), End: model.Ms(3000), Text: "Channels connect goroutines."},
			{Start: model.Ms(3000), Text: "They can be buffered."},
			{Start: model.Ms(6000), End: model.Ms(9000), Text: "Or unbuffered."},
		},
	}}
	svc, _, _ := newTestVideoService(t, source)

	video, err := svc.IngestYouTube(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "")
	require.NoError(t, err)
	assert.Equal(t, "Channels explained", video.Title)
	assert.Equal(t, model.VideoSourceYouTube, video.SourceType)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", video.VideoURL)
	assert.Equal(t, int64(120000), video.DurationMs)
	assert.Equal(t, 3, video.CueCount)

	index, err := svc.SegmentIndex(context.Background(), video.ID)
	require.NoError(t, err)
	seg, err := index.SegmentAt(model.Ms(4000))
	require.NoError(t, err)
	assert.Contains(t, seg.Text, "buffered")
}

func TestIngestYouTubeErrors(t *testing.T) {
	svc, _, _ := newTestVideoService(t, nil)
	_, err := svc.IngestYouTube(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "")
	assert.ErrorIs(t, err, util.ErrNoTranscriptSource)

	svc, _, _ = newTestVideoService(t, fakeTranscriptSource{err: util.ErrNoTranscriptSource})
	_, err = svc.IngestYouTube(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "")
	assert.ErrorIs(t, err, util.ErrNoTranscriptSource)

	svc, _, _ = newTestVideoService(t, fakeTranscriptSource{video: &YouTubeVideo{ID: "x"}})
	_, err = svc.IngestYouTube(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "")
	assert.ErrorIs(t, err, util.ErrIngestion)
}

func TestSegmentIndexRebuildsFromStore(t *testing.T) {
	svc, store, _ := newTestVideoService(t, nil)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &model.Video{UUIDBase: model.UUIDBase{ID: "video-1"}, Segments: testSegments(4)}))

	index, err := svc.SegmentIndex(ctx, "video-1")
	require.NoError(t, err)
	assert.Equal(t, 4, index.Len())

	again, err := svc.SegmentIndex(ctx, "video-1")
	require.NoError(t, err)
	assert.Same(t, index, again)

	_, err = svc.SegmentIndex(ctx, "missing")
	assert.ErrorIs(t, err, util.ErrVideoNotFound)
}

func TestDeleteVideoRemovesFilesAndSessions(t *testing.T) {
	svc, _, root := newTestVideoService(t, nil)
	ctx := context.Background()

	video, err := svc.IngestUpload(ctx, UploadInput{SubtitleFilename: "lecture.srt", Subtitle: []byte(lectureSRT)})
	require.NoError(t, err)
	index, err := svc.SegmentIndex(ctx, video.ID)
	require.NoError(t, err)
	svc.sessions.Publish(NewQuizSession("run-1", video.ID, index, nil, model.GenerationManifest{}))

	require.NoError(t, svc.Delete(ctx, video.ID))
	assert.Equal(t, 0, svc.sessions.Len())
	assert.NoFileExists(t, filepath.Join(root, "subtitles", video.ID, "lecture.srt"))

	_, err = svc.Get(ctx, video.ID)
	assert.ErrorIs(t, err, util.ErrVideoNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, video.ID), util.ErrVideoNotFound)
}

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://a.b/?x=1", wantErr: true},
		{url: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, err := ExtractYouTubeID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrInvalidYouTubeURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}
