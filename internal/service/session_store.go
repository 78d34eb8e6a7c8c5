package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QuizRunStore 出题记录持久化
type QuizRunStore interface {
	Create(ctx context.Context, run *model.QuizRun) error
	FindByID(ctx context.Context, id string) (*model.QuizRun, error)
	ListByVideo(ctx context.Context, videoID string) ([]model.QuizRun, error)
}

// QuizSession 一次出题的结果，发布后只读；判分与问答只读取已发布的会话
type QuizSession struct {
	ID        string
	VideoID   string
	Index     *transcript.TemporalIndex
	Questions []model.Question
	Manifest  model.GenerationManifest
	CreatedAt time.Time

	byID map[string]int
}

func NewQuizSession(id, videoID string, index *transcript.TemporalIndex, questions []model.Question, manifest model.GenerationManifest) *QuizSession {
	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
	}
	return &QuizSession{
		ID:        id,
		VideoID:   videoID,
		Index:     index,
		Questions: questions,
		Manifest:  manifest,
		CreatedAt: time.Now(),
		byID:      byID,
	}
}

func (s *QuizSession) Question(id string) (model.Question, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Question{}, false
	}
	return s.Questions[i], true
}

// LearnerQuestions 隐藏答案，附带锚点片段的时间范围
func (s *QuizSession) LearnerQuestions() []model.QuestionView {
	views := make([]model.QuestionView, 0, len(s.Questions))
	for i := range s.Questions {
		q := &s.Questions[i]
		var anchor model.TimeRange
		if seg, err := s.Index.SegmentOf(q.ID); err == nil {
			anchor = seg.Range()
		}
		views = append(views, q.LearnerView(anchor))
	}
	return views
}

const (
	defaultMaxSessions    = 1000
	defaultSessionIdleTTL = 30 * time.Minute
)

type sessionEntry struct {
	session  *QuizSession
	lastUsed time.Time
}

// SessionStore 会话缓存，由 App 创建并显式传给各服务。
// 未命中时从数据库加载出题记录并重建时间索引；闲置超时或超出容量的会话被淘汰，
// 下次访问时重新加载。
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	loads    singleflight.Group

	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time

	runs   QuizRunStore
	videos VideoStore
}

func NewSessionStore(runs QuizRunStore, videos VideoStore) *SessionStore {
	return &SessionStore{
		sessions:    make(map[string]*sessionEntry),
		maxSessions: defaultMaxSessions,
		idleTTL:     defaultSessionIdleTTL,
		now:         time.Now,
		runs:        runs,
		videos:      videos,
	}
}

// SetLimits 非正数表示不限制
func (s *SessionStore) SetLimits(maxSessions int, idleTTL time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = maxSessions
	s.idleTTL = idleTTL
	s.evictLocked()
}

// Publish 会话必须在出题完全结束后才能发布
func (s *SessionStore) Publish(session *QuizSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &sessionEntry{session: session, lastUsed: s.now()}
	s.evictLocked()
}

func (s *SessionStore) Get(ctx context.Context, id string) (*QuizSession, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok && s.expiredLocked(entry) {
		delete(s.sessions, id)
		ok = false
	}
	if ok {
		entry.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		return entry.session, nil
	}

	v, err, _ := s.loads.Do(id, func() (interface{}, error) {
		return s.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*QuizSession), nil
}

func (s *SessionStore) expiredLocked(entry *sessionEntry) bool {
	return s.idleTTL > 0 && s.now().Sub(entry.lastUsed) > s.idleTTL
}

// evictLocked 先清理闲置超时的会话，仍超出容量时按最近使用时间淘汰
func (s *SessionStore) evictLocked() {
	for id, entry := range s.sessions {
		if s.expiredLocked(entry) {
			delete(s.sessions, id)
		}
	}
	if s.maxSessions <= 0 || len(s.sessions) <= s.maxSessions {
		return
	}

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.sessions[ids[i]].lastUsed.Before(s.sessions[ids[j]].lastUsed)
	})
	for _, id := range ids[:len(ids)-s.maxSessions] {
		delete(s.sessions, id)
	}
}

func (s *SessionStore) load(ctx context.Context, id string) (*QuizSession, error) {
	if s.runs == nil || s.videos == nil {
		return nil, util.ErrSessionNotFound
	}

	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	video, err := s.videos.FindByID(ctx, run.VideoID)
	if err != nil {
		return nil, err
	}

	index, err := transcript.NewTemporalIndexFromSegments(video.Segments)
	if err != nil {
		return nil, err
	}
	for _, q := range run.Questions {
		if err := index.LinkQuestion(q.ID, q.SegmentID); err != nil {
			logger.Log.Error("Stored quiz run is inconsistent with its video",
				zap.String("sessionId", id), zap.String("videoId", run.VideoID), zap.Error(err))
			return nil, fmt.Errorf("rebuild session %s: %w", id, err)
		}
	}

	session := NewQuizSession(run.ID, run.VideoID, index, run.Questions, run.Manifest)
	session.CreatedAt = run.CreatedAt
	s.Publish(session)

	logger.Log.Debug("Quiz session reloaded", zap.String("sessionId", id), zap.Int("questions", len(run.Questions)))
	return session, nil
}

// EvictVideo 删除视频时清理其全部会话
func (s *SessionStore) EvictVideo(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		if entry.session.VideoID == videoID {
			delete(s.sessions, id)
		}
	}
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
