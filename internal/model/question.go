package model

import "strings"

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeFillInBlank    QuestionType = "fill_in_the_blank"
	QuestionTypeShortAnswer    QuestionType = "short_answer"

	// QuestionTypeMixed 仅用于请求参数，表示三种题型均分
	QuestionTypeMixed QuestionType = "mixed"
)

// QuestionTypes 固定顺序，分配题型和生成题目时都按此顺序遍历
var QuestionTypes = []QuestionType{
	QuestionTypeMultipleChoice,
	QuestionTypeFillInBlank,
	QuestionTypeShortAnswer,
}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeFillInBlank, QuestionTypeShortAnswer:
		return true
	}
	return false
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type MultipleChoice struct {
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId"`
}

func (mc *MultipleChoice) CorrectOption() Option {
	for _, o := range mc.Options {
		if o.ID == mc.CorrectOptionID {
			return o
		}
	}
	return Option{}
}

type FillInBlank struct {
	Answer          string   `json:"answer"`
	AcceptedAnswers []string `json:"acceptedAnswers,omitempty"`
}

type ShortAnswer struct {
	ReferenceAnswer string   `json:"referenceAnswer"`
	KeyPoints       []string `json:"keyPoints,omitempty"`
}

// Question 题目的封闭联合类型：Type 决定三个题型字段中哪一个非空。
// 只能由出题流程在校验通过后创建，之后只读。
type Question struct {
	ID                  string       `json:"id"`
	SegmentID           int          `json:"segmentId"`
	SecondarySegmentIDs []int        `json:"secondarySegmentIds,omitempty"`
	Type                QuestionType `json:"type"`
	Prompt              string       `json:"prompt"`
	Difficulty          string       `json:"difficulty,omitempty"`
	Explanation         string       `json:"explanation,omitempty"`

	MultipleChoice *MultipleChoice `json:"multipleChoice,omitempty"`
	FillInBlank    *FillInBlank    `json:"fillInBlank,omitempty"`
	ShortAnswer    *ShortAnswer    `json:"shortAnswer,omitempty"`
}

// AnswerKey 面向展示的标准答案文本
func (q *Question) AnswerKey() string {
	switch q.Type {
	case QuestionTypeMultipleChoice:
		o := q.MultipleChoice.CorrectOption()
		return o.ID + ". " + o.Text
	case QuestionTypeFillInBlank:
		return q.FillInBlank.Answer
	case QuestionTypeShortAnswer:
		if q.ShortAnswer.ReferenceAnswer != "" {
			return q.ShortAnswer.ReferenceAnswer
		}
		return strings.Join(q.ShortAnswer.KeyPoints, "; ")
	}
	return ""
}

// QuestionView 学习者看到的题目，不含答案
type QuestionView struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"type"`
	Prompt     string       `json:"prompt"`
	Options    []Option     `json:"options,omitempty"`
	Difficulty string       `json:"difficulty,omitempty"`
	Anchor     TimeRange    `json:"anchor"`
}

func (q *Question) LearnerView(anchor TimeRange) QuestionView {
	v := QuestionView{
		ID:         q.ID,
		Type:       q.Type,
		Prompt:     q.Prompt,
		Difficulty: q.Difficulty,
		Anchor:     anchor,
	}
	if q.MultipleChoice != nil {
		v.Options = append([]Option(nil), q.MultipleChoice.Options...)
	}
	return v
}

// SkippedSegment 出题失败被跳过的片段
type SkippedSegment struct {
	SegmentID int          `json:"segmentId"`
	Type      QuestionType `json:"type"`
	Requested int          `json:"requested"`
	Reason    string       `json:"reason"`
}

// GenerationManifest 一次出题的覆盖情况，缺题时必须显式告知
type GenerationManifest struct {
	Requested int              `json:"requested"`
	Generated int              `json:"generated"`
	Skipped   []SkippedSegment `json:"skipped,omitempty"`
	Shortfall []SkippedSegment `json:"shortfall,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

func (m GenerationManifest) Partial() bool {
	return m.Generated < m.Requested
}
