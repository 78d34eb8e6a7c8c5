package service

import (
	"context"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/pkg/logger"

	"go.uber.org/zap"
)

type QuizService struct {
	videos    VideoStore
	runs      QuizRunStore
	sessions  *SessionStore
	generator *QuestionGenerationService
	evaluator *EvaluationService
}

func NewQuizService(videos VideoStore, runs QuizRunStore, sessions *SessionStore, generator *QuestionGenerationService, evaluator *EvaluationService) *QuizService {
	return &QuizService{
		videos:    videos,
		runs:      runs,
		sessions:  sessions,
		generator: generator,
		evaluator: evaluator,
	}
}

// CreateQuiz 每次出题使用独立的时间索引，持久化后才发布会话
func (s *QuizService) CreateQuiz(ctx context.Context, videoID string, opts GenerationOptions) (*QuizSession, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	index, err := transcript.NewTemporalIndexFromSegments(video.Segments)
	if err != nil {
		return nil, err
	}

	result, err := s.generator.Generate(ctx, index, opts)
	if err != nil {
		return nil, err
	}

	session := NewQuizSession(model.GenerateUUID(), video.ID, index, result.Questions, result.Manifest)
	run := &model.QuizRun{
		ID:        session.ID,
		VideoID:   video.ID,
		Questions: session.Questions,
		Manifest:  session.Manifest,
		CreatedAt: time.Now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	session.CreatedAt = run.CreatedAt
	s.sessions.Publish(session)

	if result.Manifest.Partial() {
		logger.Log.Warn("Quiz generated with partial coverage",
			zap.String("sessionId", session.ID),
			zap.String("videoId", video.ID),
			zap.Strings("warnings", result.Manifest.Warnings),
		)
	}
	return session, nil
}

// ListRuns 视频的历史出题记录，不含题目
func (s *QuizService) ListRuns(ctx context.Context, videoID string) ([]model.QuizRun, error) {
	if _, err := s.videos.FindByID(ctx, videoID); err != nil {
		return nil, err
	}
	return s.runs.ListByVideo(ctx, videoID)
}

func (s *QuizService) GetSession(ctx context.Context, sessionID string) (*QuizSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID string, sub model.AnswerSubmission) (*model.FeedbackRecord, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(ctx, session, sub)
}
