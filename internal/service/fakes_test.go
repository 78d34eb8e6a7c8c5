package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/require"
)

// fakeAI 按脚本返回结果并记录所有请求
type fakeAI struct {
	mu      sync.Mutex
	calls   []GenerationRequest
	respond func(req GenerationRequest, call int) (string, error)
}

func (f *fakeAI) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.respond == nil {
		return "", fmt.Errorf("%w: no script", util.ErrServiceUnavailable)
	}
	return f.respond(req, n)
}

func (f *fakeAI) callsOf(kind InstructionKind) []GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []GenerationRequest
	for _, c := range f.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// unavailableAI 模拟超时
type unavailableAI struct{}

func (unavailableAI) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	return "", fmt.Errorf("%w: %w", util.ErrServiceUnavailable, context.DeadlineExceeded)
}

const validMCResponse = `{"questions":[{"type":"multiple_choice","question_text":"What is Go?",` +
	`"options":[{"id":"A","text":"A programming language"},{"id":"B","text":"A board game only"},{"id":"C","text":"A car brand"}],` +
	`"correct_answer":"A","explanation":"The video introduces Go as a programming language."}]}`

const oneOptionMCResponse = `{"questions":[{"type":"multiple_choice","question_text":"What is Go?",` +
	`"options":[{"id":"A","text":"A programming language"}],"correct_answer":"A"}]}`

func testSettings(mutate func(*config.PipelineConfig)) *PipelineSettings {
	cfg := config.DefaultPipelineConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPipelineSettings(cfg)
}

func testSegments(n int) []model.Segment {
	segments := make([]model.Segment, n)
	for i := range segments {
		start := int64(i) * 10000
		segments[i] = model.Segment{
			ID:    i,
			Start: model.Ms(start),
			End:   model.Ms(start + 8000),
			Text:  fmt.Sprintf("Segment %d explains topic number %d in detail.", i, i),
		}
	}
	return segments
}

func testIndex(t *testing.T, segments []model.Segment) *transcript.TemporalIndex {
	t.Helper()
	index, err := transcript.NewTemporalIndexFromSegments(segments)
	require.NoError(t, err)
	return index
}

// memoryVideoStore 内存版 VideoStore
type memoryVideoStore struct {
	mu     sync.Mutex
	videos map[string]*model.Video
}

func newMemoryVideoStore() *memoryVideoStore {
	return &memoryVideoStore{videos: make(map[string]*model.Video)}
}

func (m *memoryVideoStore) Create(ctx context.Context, video *model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if video.ID == "" {
		video.ID = model.GenerateUUID()
	}
	copied := *video
	m.videos[video.ID] = &copied
	return nil
}

func (m *memoryVideoStore) Update(ctx context.Context, video *model.Video) error {
	return m.Create(ctx, video)
}

func (m *memoryVideoStore) FindByID(ctx context.Context, id string) (*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, util.ErrVideoNotFound
	}
	copied := *v
	return &copied, nil
}

func (m *memoryVideoStore) List(ctx context.Context, page, limit int) ([]model.Video, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Video
	for _, v := range m.videos {
		out = append(out, *v)
	}
	return out, int64(len(out)), nil
}

func (m *memoryVideoStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return util.ErrVideoNotFound
	}
	delete(m.videos, id)
	return nil
}

// memoryRunStore 内存版 QuizRunStore
type memoryRunStore struct {
	mu   sync.Mutex
	runs map[string]*model.QuizRun
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{runs: make(map[string]*model.QuizRun)}
}

func (m *memoryRunStore) Create(ctx context.Context, run *model.QuizRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memoryRunStore) FindByID(ctx context.Context, id string) (*model.QuizRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	copied := *run
	return &copied, nil
}

func (m *memoryRunStore) ListByVideo(ctx context.Context, videoID string) ([]model.QuizRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuizRun
	for _, run := range m.runs {
		if run.VideoID == videoID {
			copied := *run
			copied.Questions = nil
			out = append(out, copied)
		}
	}
	return out, nil
}
