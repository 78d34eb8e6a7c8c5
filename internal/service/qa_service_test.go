package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticIndexes struct {
	index *transcript.TemporalIndex
}

func (s staticIndexes) SegmentIndex(ctx context.Context, videoID string) (*transcript.TemporalIndex, error) {
	if videoID != "video-1" {
		return nil, util.ErrVideoNotFound
	}
	return s.index, nil
}

type memoryCache struct {
	mu      sync.Mutex
	answers map[string]*model.ContextAnswer
}

func (m *memoryCache) Get(ctx context.Context, key string) (*model.ContextAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[key]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, answer *model.ContextAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *answer
	m.answers[key] = &copied
	return nil
}

func TestAskUsesNeighborWindow(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return "Topic 2 is about channels.", nil
	}}
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(5))}, nil, testSettings(nil))

	answer, err := svc.Ask(context.Background(), "video-1", model.ContextQuery{
		PauseTimestamp:      model.Ms(21000),
		LearnerQuestionText: "What is this part about?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Topic 2 is about channels.", answer.AnswerText)
	assert.Equal(t, []int{1, 2, 3}, answer.SourceSegmentIDs)
	assert.False(t, answer.Degraded)

	calls := ai.callsOf(InstructionAnswerContextQuestion)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].ContextText, "Segment 1")
	assert.Contains(t, calls[0].ContextText, "Segment 3")
	assert.NotContains(t, calls[0].ContextText, "Segment 4")
}

func TestAskWindowSizeIsConfigurable(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return "ok", nil
	}}
	settings := testSettings(func(c *config.PipelineConfig) { c.ContextWindowSegments = 0 })
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(5))}, nil, settings)

	answer, err := svc.Ask(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(0), LearnerQuestionText: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, answer.SourceSegmentIDs)
}

func TestAskGapResolvesToNextSegment(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return "ok", nil
	}}
	settings := testSettings(func(c *config.PipelineConfig) { c.ContextWindowSegments = 0 })
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(5))}, nil, settings)

	// 8000-10000 是片段 0 与片段 1 之间的空隙
	for i := 0; i < 3; i++ {
		answer, err := svc.Ask(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(9000), LearnerQuestionText: "q"})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, answer.SourceSegmentIDs)
	}
}

func TestAskOutsideTranscript(t *testing.T) {
	svc := NewQAService(&fakeAI{}, staticIndexes{testIndex(t, testSegments(2))}, nil, testSettings(nil))

	_, err := svc.Ask(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(60000), LearnerQuestionText: "q"})
	assert.ErrorIs(t, err, util.ErrNoContext)

	_, err = svc.Ask(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: -model.Ms(1), LearnerQuestionText: "q"})
	assert.ErrorIs(t, err, util.ErrNoContext)

	_, err = svc.Ask(context.Background(), "other", model.ContextQuery{LearnerQuestionText: "q"})
	assert.ErrorIs(t, err, util.ErrVideoNotFound)
}

func TestAskDegradesWhenServiceUnavailable(t *testing.T) {
	svc := NewQAService(unavailableAI{}, staticIndexes{testIndex(t, testSegments(3))}, nil, testSettings(nil))

	answer, err := svc.Ask(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(1000), LearnerQuestionText: "q"})
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Equal(t, []int{0, 1}, answer.SourceSegmentIDs)
	assert.Contains(t, answer.AnswerText, "Segment 0")
}

func TestAskUsesCache(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return "cached answer", nil
	}}
	cache := &memoryCache{answers: make(map[string]*model.ContextAnswer)}
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(3))}, cache, testSettings(nil))

	query := model.ContextQuery{PauseTimestamp: model.Ms(1000), LearnerQuestionText: "What is Go?"}
	first, err := svc.Ask(context.Background(), "video-1", query)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	query.LearnerQuestionText = "  what is   GO? "
	second, err := svc.Ask(context.Background(), "video-1", query)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.AnswerText)
	assert.Len(t, ai.callsOf(InstructionAnswerContextQuestion), 1)
}

func TestAskStreamFallsBackToSingleChunk(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return "whole answer", nil
	}}
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(3))}, nil, testSettings(nil))

	sources, stream, errChan, err := svc.AskStream(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(11000), LearnerQuestionText: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, sources)

	var chunks []string
	for c := range stream {
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{"whole answer"}, chunks)
	assert.NoError(t, <-errChan)
}

// pacedStreamer 按固定间隔输出分片；chunks 为空时一直挂起直到 ctx 取消
type pacedStreamer struct {
	chunks  []string
	delay   time.Duration
	stopped chan struct{}
}

func (p *pacedStreamer) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	return "", util.ErrServiceUnavailable
}

func (p *pacedStreamer) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(p.stopped)
		defer close(out)
		defer close(errChan)

		if len(p.chunks) == 0 {
			<-ctx.Done()
			errChan <- ctx.Err()
			return
		}
		for _, c := range p.chunks {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()
	return out, errChan
}

func TestAskStreamTimesOutWhenServiceHangs(t *testing.T) {
	ai := &pacedStreamer{stopped: make(chan struct{})}
	settings := testSettings(func(c *config.PipelineConfig) { c.ServiceTimeoutMs = 50 })
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(3))}, nil, settings)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, stream, errChan, err := svc.AskStream(ctx, "video-1", model.ContextQuery{PauseTimestamp: model.Ms(1000), LearnerQuestionText: "q"})
	require.NoError(t, err)

	for range stream {
		t.Fatal("unexpected chunk")
	}
	assert.ErrorIs(t, <-errChan, util.ErrServiceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, ctx.Err())

	select {
	case <-ai.stopped:
	case <-time.After(time.Second):
		t.Fatal("upstream stream was not cancelled")
	}
}

func TestAskStreamIdleTimeoutResetsPerChunk(t *testing.T) {
	ai := &pacedStreamer{chunks: []string{"Hel", "lo"}, delay: 120 * time.Millisecond, stopped: make(chan struct{})}
	settings := testSettings(func(c *config.PipelineConfig) { c.ServiceTimeoutMs = 200 })
	svc := NewQAService(ai, staticIndexes{testIndex(t, testSegments(3))}, nil, settings)

	_, stream, errChan, err := svc.AskStream(context.Background(), "video-1", model.ContextQuery{PauseTimestamp: model.Ms(1000), LearnerQuestionText: "q"})
	require.NoError(t, err)

	var chunks []string
	for c := range stream {
		chunks = append(chunks, c)
	}
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.NoError(t, <-errChan)
}
