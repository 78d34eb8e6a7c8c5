package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

const degradedAnswerPrefix = "The assistant is unavailable right now. Here is what the video says around this point:\n\n"

// AnswerCache 问答结果缓存，未命中返回 (nil, nil)
type AnswerCache interface {
	Get(ctx context.Context, key string) (*model.ContextAnswer, error)
	Set(ctx context.Context, key string, answer *model.ContextAnswer) error
}

// SegmentIndexProvider 按视频提供只读的时间索引
type SegmentIndexProvider interface {
	SegmentIndex(ctx context.Context, videoID string) (*transcript.TemporalIndex, error)
}

type QAService struct {
	ai       GenerativeService
	indexes  SegmentIndexProvider
	cache    AnswerCache
	settings *PipelineSettings
}

// NewQAService cache 可以为 nil
func NewQAService(ai GenerativeService, indexes SegmentIndexProvider, cache AnswerCache, settings *PipelineSettings) *QAService {
	return &QAService{
		ai:       ai,
		indexes:  indexes,
		cache:    cache,
		settings: settings,
	}
}

// contextWindow 暂停点所在片段及前后相邻片段
type contextWindow struct {
	segments []model.Segment
	ids      []int
	text     string
}

func (s *QAService) resolveWindow(ctx context.Context, videoID string, ts model.Timestamp, window int) (*contextWindow, error) {
	index, err := s.indexes.SegmentIndex(ctx, videoID)
	if err != nil {
		return nil, err
	}
	seg, err := index.SegmentAt(ts)
	if err != nil {
		return nil, err
	}

	w := &contextWindow{segments: index.Neighbors(seg.ID, window)}
	parts := make([]string, 0, len(w.segments))
	for _, n := range w.segments {
		w.ids = append(w.ids, n.ID)
		parts = append(parts, fmt.Sprintf("[%s] %s", n.Range(), n.Text))
	}
	w.text = strings.Join(parts, "\n")
	return w, nil
}

// Ask 时间点不在任何片段内时返回 util.ErrNoContext；生成式服务失败时返回降级答案而不是错误
func (s *QAService) Ask(ctx context.Context, videoID string, query model.ContextQuery) (*model.ContextAnswer, error) {
	cfg := s.settings.Snapshot()
	w, err := s.resolveWindow(ctx, videoID, query.PauseTimestamp, cfg.ContextWindowSegments)
	if err != nil {
		return nil, err
	}

	key := cacheKey(videoID, w.ids, query.LearnerQuestionText)
	if cached := s.lookup(ctx, key); cached != nil {
		cached.Cached = true
		return cached, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.ServiceTimeout())
	defer cancel()

	text, err := s.ai.Complete(callCtx, GenerationRequest{
		Kind:        InstructionAnswerContextQuestion,
		ContextText: w.text,
		Question:    query.LearnerQuestionText,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		logger.Log.Warn("Contextual answer unavailable, returning transcript excerpt",
			zap.String("videoId", videoID),
			zap.Int64("pauseMs", query.PauseTimestamp.Milliseconds()),
			zap.Error(err),
		)
		return degradedAnswer(w), nil
	}

	answer := &model.ContextAnswer{AnswerText: text, SourceSegmentIDs: w.ids}
	s.store(ctx, key, answer)
	return answer, nil
}

// AskStream 流式版本，先确定来源片段再开始输出；流中断时通过 errChan 通知调用方
func (s *QAService) AskStream(ctx context.Context, videoID string, query model.ContextQuery) ([]int, <-chan string, <-chan error, error) {
	cfg := s.settings.Snapshot()
	w, err := s.resolveWindow(ctx, videoID, query.PauseTimestamp, cfg.ContextWindowSegments)
	if err != nil {
		return nil, nil, nil, err
	}

	req := GenerationRequest{
		Kind:        InstructionAnswerContextQuestion,
		ContextText: w.text,
		Question:    query.LearnerQuestionText,
	}

	if streamer, ok := s.ai.(StreamingGenerativeService); ok {
		streamCtx, cancel := context.WithCancel(ctx)
		upstream, upstreamErr := streamer.CompleteStream(streamCtx, req)
		stream, errChan := relayStream(streamCtx, cancel, upstream, upstreamErr, cfg.ServiceTimeout())
		return w.ids, stream, errChan, nil
	}

	answer, err := s.Ask(ctx, videoID, query)
	if err != nil {
		return nil, nil, nil, err
	}
	out := make(chan string, 1)
	errChan := make(chan error, 1)
	out <- answer.AnswerText
	close(out)
	close(errChan)
	return w.ids, out, errChan, nil
}

// relayStream 转发上游分片。等待首个分片或相邻分片的时间超过 idle 时取消上游，
// 并以 util.ErrServiceUnavailable 结束。
func relayStream(ctx context.Context, cancel context.CancelFunc, in <-chan string, inErr <-chan error, idle time.Duration) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(out)
		defer cancel()

		timer := time.NewTimer(idle)
		defer timer.Stop()

		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					if err := <-inErr; err != nil {
						errChan <- err
					}
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					errChan <- fmt.Errorf("%w: %w", util.ErrServiceUnavailable, ctx.Err())
					return
				}
				timer.Reset(idle)
			case <-timer.C:
				errChan <- fmt.Errorf("%w: no output within %s", util.ErrServiceUnavailable, idle)
				return
			case <-ctx.Done():
				errChan <- fmt.Errorf("%w: %w", util.ErrServiceUnavailable, ctx.Err())
				return
			}
		}
	}()

	return out, errChan
}

// DegradedText 流式输出失败时的兜底文本
func (s *QAService) DegradedText(ctx context.Context, videoID string, ts model.Timestamp) string {
	w, err := s.resolveWindow(ctx, videoID, ts, s.settings.Snapshot().ContextWindowSegments)
	if err != nil {
		return ""
	}
	return degradedAnswer(w).AnswerText
}

func degradedAnswer(w *contextWindow) *model.ContextAnswer {
	texts := make([]string, 0, len(w.segments))
	for _, seg := range w.segments {
		texts = append(texts, seg.Text)
	}
	return &model.ContextAnswer{
		AnswerText:       degradedAnswerPrefix + strings.Join(texts, " "),
		SourceSegmentIDs: w.ids,
		Degraded:         true,
	}
}

func (s *QAService) lookup(ctx context.Context, key string) *model.ContextAnswer {
	if s.cache == nil {
		return nil
	}
	answer, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Log.Warn("QA cache read failed", zap.Error(err))
		return nil
	}
	return answer
}

func (s *QAService) store(ctx context.Context, key string, answer *model.ContextAnswer) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, answer); err != nil {
		logger.Log.Warn("QA cache write failed", zap.Error(err))
	}
}

func cacheKey(videoID string, segmentIDs []int, question string) string {
	ids := make([]string, len(segmentIDs))
	for i, id := range segmentIDs {
		ids[i] = strconv.Itoa(id)
	}
	sum := sha256.Sum256([]byte(normalizeAnswer(question)))
	return fmt.Sprintf("qa:%s:%s:%s", videoID, strings.Join(ids, ","), hex.EncodeToString(sum[:8]))
}
