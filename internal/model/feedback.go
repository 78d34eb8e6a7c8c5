package model

type AnswerSubmission struct {
	QuestionID      string `json:"questionId" binding:"required"`
	LearnerResponse string `json:"learnerResponse"`
}

// FeedbackRecord 判分结果；NavigationTarget 指向题目所属片段，供播放器跳转
type FeedbackRecord struct {
	QuestionID       string       `json:"questionId"`
	Type             QuestionType `json:"type"`
	Correct          bool         `json:"correct"`
	Partial          bool         `json:"partial"`
	Score            int          `json:"score"`
	LowConfidence    bool         `json:"lowConfidence"`
	Explanation      string       `json:"explanation"`
	CorrectAnswer    string       `json:"correctAnswer"`
	NavigationTarget TimeRange    `json:"navigationTarget"`
}

type ContextQuery struct {
	PauseTimestamp      Timestamp `json:"pauseTimestampMs"`
	LearnerQuestionText string    `json:"question" binding:"required"`
}

type ContextAnswer struct {
	AnswerText       string `json:"answer"`
	SourceSegmentIDs []int  `json:"sourceSegmentIds"`
	Degraded         bool   `json:"degraded,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
}
