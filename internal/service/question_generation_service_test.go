package service

import (
	"context"
	"fmt"
	"testing"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrideIndices(t *testing.T) {
	tests := []struct {
		n, k int
		want []int
	}{
		{n: 10, k: 3, want: []int{0, 5, 9}},
		{n: 10, k: 1, want: []int{4}},
		{n: 10, k: 2, want: []int{0, 9}},
		{n: 5, k: 5, want: []int{0, 1, 2, 3, 4}},
		{n: 7, k: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.k, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, strideIndices(tt.n, tt.k))
		})
	}
}

func TestSlotsPerSegment(t *testing.T) {
	assert.Equal(t, []int{1, 0, 0, 0, 0, 1, 0, 0, 0, 1}, slotsPerSegment(10, 3))
	assert.Equal(t, []int{2, 2, 2}, slotsPerSegment(3, 6))
	assert.Equal(t, []int{2, 1, 2}, slotsPerSegment(3, 5))
}

func TestApportionAndInterleave(t *testing.T) {
	counts := apportion(10, []int{1, 1, 1})
	assert.Equal(t, 10, counts[0]+counts[1]+counts[2])
	assert.Equal(t, []int{4, 3, 3}, counts)

	assert.Equal(t, []int{0, 5, 0}, apportion(5, []int{0, 2, 0}))

	types := interleaveTypes([]int{2, 1, 0})
	assert.Equal(t, []model.QuestionType{
		model.QuestionTypeMultipleChoice,
		model.QuestionTypeFillInBlank,
		model.QuestionTypeMultipleChoice,
	}, types)
}

func TestClampCount(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	assert.Equal(t, cfg.QuestionCount, clampCount(0, cfg))
	assert.Equal(t, 3, clampCount(3, cfg))
	assert.Equal(t, cfg.MaxQuestionCount, clampCount(1000, cfg))
}

func TestResolveWeights(t *testing.T) {
	cfg := config.DefaultPipelineConfig()

	w, err := resolveWeights(GenerationOptions{Type: model.QuestionTypeMixed}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, w)

	w, err = resolveWeights(GenerationOptions{Type: model.QuestionTypeShortAnswer}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, w)

	w, err = resolveWeights(GenerationOptions{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 0}, w)

	_, err = resolveWeights(GenerationOptions{Type: "essay"}, cfg)
	assert.Error(t, err)

	_, err = resolveWeights(GenerationOptions{Distribution: map[model.QuestionType]int{model.QuestionTypeFillInBlank: 0}}, cfg)
	assert.Error(t, err)
}

func TestGenerateUsesStrideSelection(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return validMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))
	index := testIndex(t, testSegments(10))

	result, err := svc.Generate(context.Background(), index, GenerationOptions{Count: 3})
	require.NoError(t, err)
	require.Len(t, result.Questions, 3)

	var anchors []int
	for _, q := range result.Questions {
		anchors = append(anchors, q.SegmentID)

		seg, err := index.SegmentOf(q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.SegmentID, seg.ID)
		assert.Equal(t, model.QuestionTypeMultipleChoice, q.Type)
	}
	assert.Equal(t, []int{0, 5, 9}, anchors)
	assert.Equal(t, "s0-q1", result.Questions[0].ID)

	assert.Equal(t, 3, result.Manifest.Requested)
	assert.Equal(t, 3, result.Manifest.Generated)
	assert.False(t, result.Manifest.Partial())
	assert.Empty(t, result.Manifest.Skipped)
}

func TestGenerateShortSegmentsBorrowNextSegment(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return validMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))
	segments := testSegments(10)

	result, err := svc.Generate(context.Background(), testIndex(t, segments), GenerationOptions{Count: 3})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, result.Questions[0].SecondarySegmentIDs)
	assert.Empty(t, result.Questions[2].SecondarySegmentIDs, "last segment has no successor")

	for _, call := range ai.callsOf(InstructionGenerateQuestions) {
		assert.Contains(t, call.ContextText, "Segment")
	}
}

func TestGenerateCoversEverySegmentWhenCountExceedsSegments(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return validMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))
	index := testIndex(t, testSegments(3))

	result, err := svc.Generate(context.Background(), index, GenerationOptions{Count: 3})
	require.NoError(t, err)
	require.Len(t, result.Questions, 3)
	for i := 0; i < 3; i++ {
		assert.Len(t, index.QuestionsOf(i), 1)
	}
}

func TestGenerateRetriesThenSkipsInvalidSegment(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return oneOptionMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))
	index := testIndex(t, testSegments(1))

	result, err := svc.Generate(context.Background(), index, GenerationOptions{Count: 1})
	require.NoError(t, err)

	calls := ai.callsOf(InstructionGenerateQuestions)
	require.Len(t, calls, 2, "one initial attempt and one retry")
	assert.False(t, calls[0].Strict)
	assert.True(t, calls[1].Strict)

	assert.Empty(t, result.Questions)
	require.Len(t, result.Manifest.Skipped, 1)
	assert.Equal(t, 0, result.Manifest.Skipped[0].SegmentID)
	assert.True(t, result.Manifest.Partial())
	assert.NotEmpty(t, result.Manifest.Warnings)
	assert.Empty(t, index.QuestionsOf(0))
}

func TestGenerateRecoversOnStrictRetry(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		if !req.Strict {
			return "Sure! Here is a question about Go.", nil
		}
		return validMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))

	result, err := svc.Generate(context.Background(), testIndex(t, testSegments(1)), GenerationOptions{Count: 1})
	require.NoError(t, err)
	assert.Len(t, result.Questions, 1)
	assert.Empty(t, result.Manifest.Skipped)
}

func TestGenerateIsolatesServiceFailures(t *testing.T) {
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		if req.ContextText[:9] == "Segment 1" {
			return "", fmt.Errorf("%w: boom", util.ErrServiceUnavailable)
		}
		return validMCResponse, nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(func(c *config.PipelineConfig) {
		c.MinGenerationTextLength = 0
	}))

	result, err := svc.Generate(context.Background(), testIndex(t, testSegments(3)), GenerationOptions{Count: 3})
	require.NoError(t, err)
	assert.Len(t, result.Questions, 2)
	require.Len(t, result.Manifest.Skipped, 1)
	assert.Equal(t, 1, result.Manifest.Skipped[0].SegmentID)
	assert.Contains(t, result.Manifest.Skipped[0].Reason, "boom")
}

func TestGenerateMixedTypes(t *testing.T) {
	responses := map[model.QuestionType]string{
		model.QuestionTypeMultipleChoice: validMCResponse,
		model.QuestionTypeFillInBlank:    `{"questions":[{"type":"fill_in_the_blank","question_text":"Go is a ___ language.","correct_answer":"compiled"}]}`,
		model.QuestionTypeShortAnswer:    `{"questions":[{"type":"short_answer","question_text":"Why Go?","sample_answer":"It is simple and fast."}]}`,
	}
	ai := &fakeAI{respond: func(req GenerationRequest, call int) (string, error) {
		return responses[req.DesiredType], nil
	}}
	svc := NewQuestionGenerationService(ai, testSettings(nil))

	result, err := svc.Generate(context.Background(), testIndex(t, testSegments(6)), GenerationOptions{Count: 6, Type: model.QuestionTypeMixed})
	require.NoError(t, err)
	require.Len(t, result.Questions, 6)

	counts := make(map[model.QuestionType]int)
	for _, q := range result.Questions {
		counts[q.Type]++
	}
	assert.Equal(t, 2, counts[model.QuestionTypeMultipleChoice])
	assert.Equal(t, 2, counts[model.QuestionTypeFillInBlank])
	assert.Equal(t, 2, counts[model.QuestionTypeShortAnswer])
}

func TestGenerateRejectsEmptyIndex(t *testing.T) {
	svc := NewQuestionGenerationService(&fakeAI{}, testSettings(nil))
	_, err := svc.Generate(context.Background(), testIndex(t, nil), GenerationOptions{Count: 1})
	assert.ErrorIs(t, err, util.ErrIngestion)
}
