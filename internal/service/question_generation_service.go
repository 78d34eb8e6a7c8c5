package service

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/transcript"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"
	"video_quiz_backend/pkg/monitoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GenerationOptions 单次出题请求。Type 为空时使用配置中的题型分布，mixed 表示三种题型均分
type GenerationOptions struct {
	Count int                `json:"count"`
	Type  model.QuestionType `json:"type"`
	// Distribution 覆盖配置中的题型权重
	Distribution map[model.QuestionType]int `json:"distribution,omitempty"`
}

type GenerationResult struct {
	Questions []model.Question
	Manifest  model.GenerationManifest
}

// generationJob 同一片段、同一题型的一批题目
type generationJob struct {
	segment   model.Segment
	qtype     model.QuestionType
	count     int
	context   string
	secondary []int
}

type jobResult struct {
	questions []model.Question
	reason    string
}

type QuestionGenerationService struct {
	ai       GenerativeService
	settings *PipelineSettings
}

func NewQuestionGenerationService(ai GenerativeService, settings *PipelineSettings) *QuestionGenerationService {
	return &QuestionGenerationService{ai: ai, settings: settings}
}

// Generate 按分布与数量选择片段、并发请求候选题、校验并写入时间索引。
// 单个片段失败只记入 manifest，不影响整次出题；索引只在此函数的合并阶段写入。
func (s *QuestionGenerationService) Generate(ctx context.Context, index *transcript.TemporalIndex, opts GenerationOptions) (*GenerationResult, error) {
	cfg := s.settings.Snapshot()
	segments := index.Segments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments to generate from", util.ErrIngestion)
	}

	count := clampCount(opts.Count, cfg)
	weights, err := resolveWeights(opts, cfg)
	if err != nil {
		return nil, err
	}

	jobs := planJobs(segments, count, weights, cfg.MinGenerationTextLength)

	results := make([]jobResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.GenerationConcurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			// 单个任务失败不返回错误，避免取消兄弟任务
			results[i] = s.runJob(gctx, job, cfg)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &GenerationResult{Manifest: model.GenerationManifest{Requested: count}}
	perSegment := make(map[int]int)

	for i, job := range jobs {
		res := results[i]
		for _, q := range res.questions {
			perSegment[job.segment.ID]++
			q.ID = fmt.Sprintf("s%d-q%d", job.segment.ID, perSegment[job.segment.ID])
			q.SegmentID = job.segment.ID
			q.SecondarySegmentIDs = job.secondary

			if err := index.LinkQuestion(q.ID, q.SegmentID); err != nil {
				logger.Log.Error("Temporal index rejected question", zap.String("questionId", q.ID), zap.Error(err))
				return nil, err
			}
			result.Questions = append(result.Questions, q)
			monitoring.QuestionGenerationCounter.WithLabelValues(string(q.Type), "accepted").Inc()
		}

		missing := job.count - len(res.questions)
		if missing <= 0 {
			continue
		}

		entry := model.SkippedSegment{
			SegmentID: job.segment.ID,
			Type:      job.qtype,
			Requested: job.count,
			Reason:    res.reason,
		}
		if len(res.questions) == 0 {
			result.Manifest.Skipped = append(result.Manifest.Skipped, entry)
			result.Manifest.Warnings = append(result.Manifest.Warnings,
				fmt.Sprintf("segment %d (%s) skipped: %s", job.segment.ID, job.segment.Range(), res.reason))
			monitoring.QuestionGenerationCounter.WithLabelValues(string(job.qtype), "skipped").Add(float64(missing))
		} else {
			result.Manifest.Shortfall = append(result.Manifest.Shortfall, entry)
			result.Manifest.Warnings = append(result.Manifest.Warnings,
				fmt.Sprintf("segment %d (%s) produced %d of %d questions", job.segment.ID, job.segment.Range(), len(res.questions), job.count))
		}
	}

	result.Manifest.Generated = len(result.Questions)
	logger.Log.Info("Question generation finished",
		zap.Int("requested", count),
		zap.Int("generated", result.Manifest.Generated),
		zap.Int("skipped", len(result.Manifest.Skipped)),
		zap.Int("jobs", len(jobs)),
	)
	return result, nil
}

// runJob 首次请求失败后用更严格的指令重试，总次数为 1 + GenerationRetryLimit
func (s *QuestionGenerationService) runJob(ctx context.Context, job generationJob, cfg config.PipelineConfig) jobResult {
	var (
		accepted []model.Question
		reason   string
	)

	attempts := 1 + cfg.GenerationRetryLimit
	for attempt := 0; attempt < attempts && len(accepted) < job.count; attempt++ {
		if ctx.Err() != nil {
			reason = ctx.Err().Error()
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.ServiceTimeout())
		raw, err := s.ai.Complete(callCtx, GenerationRequest{
			Kind:        InstructionGenerateQuestions,
			ContextText: job.context,
			DesiredType: job.qtype,
			Count:       job.count - len(accepted),
			Strict:      attempt > 0,
		})
		cancel()
		if err != nil {
			reason = err.Error()
			logger.Log.Warn("Question generation request failed",
				zap.Int("segmentId", job.segment.ID),
				zap.String("type", string(job.qtype)),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		candidates, err := parseCandidates(raw)
		if err != nil {
			reason = err.Error()
			monitoring.QuestionGenerationCounter.WithLabelValues(string(job.qtype), "rejected").Inc()
			logger.Log.Warn("Unparseable generation response",
				zap.Int("segmentId", job.segment.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		for _, c := range candidates {
			if len(accepted) >= job.count {
				break
			}
			q, err := toQuestion(c, job.qtype)
			if err != nil {
				reason = err.Error()
				monitoring.QuestionGenerationCounter.WithLabelValues(string(job.qtype), "rejected").Inc()
				logger.Log.Warn("Rejected question candidate",
					zap.Int("segmentId", job.segment.ID),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				continue
			}
			accepted = append(accepted, q)
		}
		if len(accepted) < job.count && reason == "" {
			reason = fmt.Sprintf("response contained %d usable questions", len(accepted))
		}
	}

	return jobResult{questions: accepted, reason: reason}
}

func clampCount(requested int, cfg config.PipelineConfig) int {
	count := requested
	if count <= 0 {
		count = cfg.QuestionCount
	}
	if count < 1 {
		count = 1
	}
	if cfg.MaxQuestionCount > 0 && count > cfg.MaxQuestionCount {
		count = cfg.MaxQuestionCount
	}
	return count
}

// resolveWeights 请求中的题型优先于配置分布；结果按 model.QuestionTypes 顺序
func resolveWeights(opts GenerationOptions, cfg config.PipelineConfig) ([]int, error) {
	weights := make([]int, len(model.QuestionTypes))

	switch {
	case opts.Type == model.QuestionTypeMixed:
		for i := range weights {
			weights[i] = 1
		}
	case opts.Type != "":
		if !opts.Type.Valid() {
			return nil, fmt.Errorf("%w: unsupported question type %s", util.ErrInvalidOptions, opts.Type)
		}
		for i, t := range model.QuestionTypes {
			if t == opts.Type {
				weights[i] = 1
			}
		}
	case len(opts.Distribution) > 0:
		for t := range opts.Distribution {
			if !t.Valid() {
				return nil, fmt.Errorf("%w: unsupported question type %s", util.ErrInvalidOptions, t)
			}
		}
		for i, t := range model.QuestionTypes {
			weights[i] = opts.Distribution[t]
		}
	default:
		for i, t := range model.QuestionTypes {
			weights[i] = cfg.QuestionTypeDistribution[string(t)]
		}
	}

	total := 0
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight in question type distribution", util.ErrInvalidOptions)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: question type distribution has no positive weight", util.ErrInvalidOptions)
	}
	return weights, nil
}

// apportion 最大余数法把 count 按权重分给各题型
func apportion(count int, weights []int) []int {
	total := 0
	for _, w := range weights {
		total += w
	}

	counts := make([]int, len(weights))
	type remainder struct{ idx, rem int }
	rems := make([]remainder, 0, len(weights))
	assigned := 0
	for i, w := range weights {
		counts[i] = count * w / total
		assigned += counts[i]
		rems = append(rems, remainder{idx: i, rem: count * w % total})
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem > rems[b].rem
	})
	for i := 0; assigned < count; i++ {
		if weights[rems[i].idx] == 0 {
			continue
		}
		counts[rems[i].idx]++
		assigned++
	}
	return counts
}

// interleaveTypes 平滑加权轮询，使题型在时间轴上交错分布
func interleaveTypes(counts []int) []model.QuestionType {
	total := 0
	for _, c := range counts {
		total += c
	}

	current := make([]int, len(counts))
	out := make([]model.QuestionType, 0, total)
	for len(out) < total {
		best := -1
		for i, c := range counts {
			current[i] += c
			if best < 0 || current[i] > current[best] {
				best = i
			}
		}
		current[best] -= total
		out = append(out, model.QuestionTypes[best])
	}
	return out
}

// strideIndices 从 n 个位置中均匀选出 k 个，包含首尾
func strideIndices(n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if k == 1 {
		return []int{(n - 1) / 2}
	}

	out := make([]int, k)
	for i := range out {
		out[i] = (2*i*(n-1) + (k - 1)) / (2 * (k - 1))
	}
	return out
}

// slotsPerSegment 每个片段分到的题目数
func slotsPerSegment(n, count int) []int {
	slots := make([]int, n)
	base := count / n
	for i := range slots {
		slots[i] = base
	}
	for _, idx := range strideIndices(n, count%n) {
		slots[idx]++
	}
	return slots
}

// planJobs 按时间顺序把题目槽位分配到片段与题型，并合并为请求任务
func planJobs(segments []model.Segment, count int, weights []int, minTextLength int) []generationJob {
	slots := slotsPerSegment(len(segments), count)
	types := interleaveTypes(apportion(count, weights))

	var jobs []generationJob
	next := 0
	for pos, n := range slots {
		for j := 0; j < n; j++ {
			qtype := types[next]
			next++

			if last := len(jobs) - 1; last >= 0 && jobs[last].segment.ID == segments[pos].ID && jobs[last].qtype == qtype {
				jobs[last].count++
				continue
			}

			text, secondary := generationContext(segments, pos, minTextLength)
			jobs = append(jobs, generationJob{
				segment:   segments[pos],
				qtype:     qtype,
				count:     1,
				context:   text,
				secondary: secondary,
			})
		}
	}
	return jobs
}

// generationContext 片段过短时借用下一个片段的文本，并记录为次要片段
func generationContext(segments []model.Segment, pos int, minTextLength int) (string, []int) {
	seg := segments[pos]
	if utf8.RuneCountInString(seg.Text) >= minTextLength || pos+1 >= len(segments) {
		return seg.Text, nil
	}
	next := segments[pos+1]
	return seg.Text + "\n" + next.Text, []int{next.ID}
}
