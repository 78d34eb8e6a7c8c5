package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"
	"video_quiz_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const (
	minShortAnswerLength = 5
	partialScoreFloor    = 30
	fillInBlankPartial   = 50
	minKeywordLength     = 4

	lowConfidenceNote = "Automatic grading was unavailable, so this result was estimated from keyword overlap and has reduced confidence."
)

var stopWords = map[string]bool{
	"about": true, "after": true, "also": true, "because": true, "been": true, "before": true,
	"being": true, "between": true, "both": true, "could": true, "does": true, "each": true,
	"from": true, "have": true, "into": true, "more": true, "most": true, "other": true,
	"over": true, "same": true, "should": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "very": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true,
}

type EvaluationService struct {
	ai       GenerativeService
	settings *PipelineSettings
}

func NewEvaluationService(ai GenerativeService, settings *PipelineSettings) *EvaluationService {
	return &EvaluationService{ai: ai, settings: settings}
}

// Evaluate 判分并生成反馈。生成式服务失败时降级处理，学习者总能拿到反馈；
// 只有题目不属于该会话时返回 util.ErrUnknownQuestion。
func (s *EvaluationService) Evaluate(ctx context.Context, session *QuizSession, sub model.AnswerSubmission) (*model.FeedbackRecord, error) {
	q, ok := session.Question(sub.QuestionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrUnknownQuestion, sub.QuestionID)
	}
	seg, err := session.Index.SegmentOf(q.ID)
	if err != nil {
		return nil, err
	}

	cfg := s.settings.Snapshot()
	record := &model.FeedbackRecord{
		QuestionID:       q.ID,
		Type:             q.Type,
		CorrectAnswer:    q.AnswerKey(),
		NavigationTarget: seg.Range(),
	}

	source := "exact"
	var judgeFeedback string
	serviceDown := false
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		scoreMultipleChoice(q.MultipleChoice, sub.LearnerResponse, record)
	case model.QuestionTypeFillInBlank:
		scoreFillInBlank(q.FillInBlank, sub.LearnerResponse, record)
	case model.QuestionTypeShortAnswer:
		source, judgeFeedback, serviceDown = s.scoreShortAnswer(ctx, q, seg.Text, sub.LearnerResponse, cfg, record)
	}
	monitoring.FeedbackCounter.WithLabelValues(string(q.Type), source).Inc()

	explanation := s.explain(ctx, q, seg, sub.LearnerResponse, cfg, !serviceDown)
	if judgeFeedback != "" {
		explanation = judgeFeedback + "\n\n" + explanation
	}
	if record.LowConfidence {
		explanation = lowConfidenceNote + " " + explanation
	}
	record.Explanation = explanation

	return record, nil
}

// scoreMultipleChoice 作答可以是选项 id 或选项文本，不给部分分
func scoreMultipleChoice(mc *model.MultipleChoice, response string, record *model.FeedbackRecord) {
	selected, ok := selectOption(mc.Options, response)
	if ok && selected.ID == mc.CorrectOptionID {
		record.Correct = true
		record.Score = 100
	}
}

// selectOption 先按 id 匹配，没有命中时才按文本匹配，保证一次作答只对应一个选项
func selectOption(options []model.Option, response string) (model.Option, bool) {
	resp := strings.TrimSpace(response)
	if resp == "" {
		return model.Option{}, false
	}
	for _, o := range options {
		if strings.EqualFold(resp, o.ID) {
			return o, true
		}
	}
	for _, o := range options {
		if strings.EqualFold(resp, o.Text) {
			return o, true
		}
	}
	return model.Option{}, false
}

// scoreFillInBlank 忽略大小写与空白；答案与标准答案互相包含时记为部分正确
func scoreFillInBlank(fib *model.FillInBlank, response string, record *model.FeedbackRecord) {
	resp := normalizeAnswer(response)
	if resp == "" {
		return
	}

	expected := append([]string{fib.Answer}, fib.AcceptedAnswers...)
	for _, e := range expected {
		if resp == normalizeAnswer(e) {
			record.Correct = true
			record.Score = 100
			return
		}
	}

	for _, e := range expected {
		e = normalizeAnswer(e)
		if strings.Contains(resp, e) || (utf8.RuneCountInString(resp) >= 3 && strings.Contains(e, resp)) {
			record.Partial = true
			record.Score = fillInBlankPartial
			return
		}
	}
}

type shortAnswerJudgment struct {
	ScorePercentage *float64 `json:"score_percentage"`
	Feedback        string   `json:"feedback"`
}

// scoreShortAnswer 返回计分来源、模型给出的反馈，以及服务是否不可用
func (s *EvaluationService) scoreShortAnswer(ctx context.Context, q model.Question, contextText, response string, cfg config.PipelineConfig, record *model.FeedbackRecord) (string, string, bool) {
	resp := strings.TrimSpace(response)
	if utf8.RuneCountInString(resp) < minShortAnswerLength {
		return "exact", "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.ServiceTimeout())
	defer cancel()

	raw, err := s.ai.Complete(callCtx, GenerationRequest{
		Kind:            InstructionScoreShortAnswer,
		ContextText:     contextText,
		Question:        q.Prompt,
		ReferenceAnswer: q.ShortAnswer.ReferenceAnswer,
		KeyPoints:       q.ShortAnswer.KeyPoints,
		LearnerResponse: resp,
	})
	if err == nil {
		var judgment *shortAnswerJudgment
		judgment, err = parseJudgment(raw)
		if err == nil {
			score := int(math.Round(math.Max(0, math.Min(100, *judgment.ScorePercentage))))
			record.Score = score
			record.Correct = score >= cfg.ShortAnswerPassScore
			record.Partial = !record.Correct && score >= partialScoreFloor
			return "model", strings.TrimSpace(judgment.Feedback), false
		}
	}

	logger.Log.Warn("Short answer judgment unavailable, using keyword fallback",
		zap.String("questionId", q.ID), zap.Error(err))

	ratio := keywordOverlap(q.ShortAnswer, resp)
	record.LowConfidence = true
	record.Score = int(math.Round(ratio * 100))
	record.Correct = ratio >= cfg.KeywordOverlapThreshold
	record.Partial = !record.Correct && ratio > 0
	return "fallback", "", errors.Is(err, util.ErrServiceUnavailable)
}

func parseJudgment(raw string) (*shortAnswerJudgment, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("judgment is not JSON")
	}

	var j shortAnswerJudgment
	if err := json.Unmarshal([]byte(text[start:end+1]), &j); err != nil {
		return nil, err
	}
	if j.ScorePercentage == nil {
		return nil, fmt.Errorf("judgment has no score")
	}
	return &j, nil
}

// keywordOverlap 参考答案与要点中的关键词被作答覆盖的比例
func keywordOverlap(sa *model.ShortAnswer, response string) float64 {
	keywords := extractKeywords(sa.ReferenceAnswer + " " + strings.Join(sa.KeyPoints, " "))
	if len(keywords) == 0 {
		return 0
	}

	answered := make(map[string]bool)
	for _, w := range extractKeywords(response) {
		answered[w] = true
	}

	matched := 0
	for _, k := range keywords {
		if answered[k] {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// extractKeywords 去重后的小写关键词，保持出现顺序
func extractKeywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < minKeywordLength || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// explain 依次尝试出题时的解析、现场生成的讲解、通用提示。
// 判分刚遇到服务不可用时 askService 为 false，直接给通用提示。
func (s *EvaluationService) explain(ctx context.Context, q model.Question, seg model.Segment, response string, cfg config.PipelineConfig, askService bool) string {
	if q.Explanation != "" {
		return q.Explanation
	}
	if !askService {
		return genericExplanation(seg)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.ServiceTimeout())
	defer cancel()

	text, err := s.ai.Complete(callCtx, GenerationRequest{
		Kind:            InstructionExplainAnswer,
		ContextText:     seg.Text,
		Question:        q.Prompt,
		ReferenceAnswer: q.AnswerKey(),
		LearnerResponse: response,
	})
	if err == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}

	logger.Log.Warn("Explanation unavailable, using generic message", zap.String("questionId", q.ID), zap.Error(err))
	return genericExplanation(seg)
}

func genericExplanation(seg model.Segment) string {
	return fmt.Sprintf("Review this section of the video (%s) and try again.", seg.Range())
}
