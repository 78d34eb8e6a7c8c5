package service

import (
	"sync"

	"video_quiz_backend/internal/config"
)

// PipelineSettings 可热更新的流水线参数。每次出题/判分开始时取一份快照，
// 运行中的流程不受后续更新影响。
type PipelineSettings struct {
	mu  sync.RWMutex
	cfg config.PipelineConfig
}

func NewPipelineSettings(cfg config.PipelineConfig) *PipelineSettings {
	return &PipelineSettings{cfg: cfg}
}

func (s *PipelineSettings) Snapshot() config.PipelineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.QuestionTypeDistribution = make(map[string]int, len(s.cfg.QuestionTypeDistribution))
	for k, v := range s.cfg.QuestionTypeDistribution {
		cfg.QuestionTypeDistribution[k] = v
	}
	return cfg
}

// Update 校验失败时保留旧值
func (s *PipelineSettings) Update(cfg config.PipelineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
