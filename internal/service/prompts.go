package service

import (
	"fmt"
	"strings"

	"video_quiz_backend/internal/model"
)

const tutorSystemPrompt = "You are a teaching assistant for an educational video. " +
	"Base every answer strictly on the transcript excerpt you are given."

// questionSchemas 每种题型要求模型输出的 JSON 结构
var questionSchemas = map[model.QuestionType]string{
	model.QuestionTypeMultipleChoice: `{"type": "multiple_choice", "question_text": "...", ` +
		`"options": [{"id": "A", "text": "..."}, {"id": "B", "text": "..."}, {"id": "C", "text": "..."}, {"id": "D", "text": "..."}], ` +
		`"correct_answer": "A", "explanation": "...", "difficulty": "easy|medium|hard"}`,
	model.QuestionTypeFillInBlank: `{"type": "fill_in_the_blank", "question_text": "A sentence with ___ marking the blank.", ` +
		`"correct_answer": "word", "accepted_answers": ["synonym"], "explanation": "...", "difficulty": "easy|medium|hard"}`,
	model.QuestionTypeShortAnswer: `{"type": "short_answer", "question_text": "...", "sample_answer": "...", ` +
		`"key_points": ["...", "..."], "explanation": "...", "difficulty": "easy|medium|hard"}`,
}

var questionRules = map[model.QuestionType]string{
	model.QuestionTypeMultipleChoice: "Each multiple choice question has exactly 4 distinct options and exactly one correct option. " +
		"correct_answer must be the id of the correct option.",
	model.QuestionTypeFillInBlank: "Each fill in the blank question contains the marker ___ exactly where the missing word goes. " +
		"correct_answer is the missing word or short phrase taken from the transcript.",
	model.QuestionTypeShortAnswer: "Each short answer question has a sample_answer of one to three sentences " +
		"and two to four key_points a good answer must mention.",
}

// BuildMessages 将结构化请求转换为对话消息
func BuildMessages(req GenerationRequest) []AIChatMessage {
	var system, user string

	switch req.Kind {
	case InstructionGenerateQuestions:
		system = "You write quiz questions that test understanding of an educational video transcript. " +
			"Respond with JSON only."
		user = generateQuestionsPrompt(req)
	case InstructionScoreShortAnswer:
		system = "You grade short answers from learners. Respond with JSON only."
		user = fmt.Sprintf("Transcript excerpt:\n%s\n\nQuestion: %s\nReference answer: %s\nKey points: %s\n"+
			"Learner answer: %s\n\n"+
			"Judge whether the learner answer is semantically correct. Wording may differ from the reference. "+
			`Respond with {"score_percentage": <integer 0-100>, "feedback": "<one or two sentences addressed to the learner>"}.`,
			req.ContextText, req.Question, req.ReferenceAnswer, strings.Join(req.KeyPoints, "; "), req.LearnerResponse)
	case InstructionExplainAnswer:
		system = tutorSystemPrompt
		user = fmt.Sprintf("Transcript excerpt:\n%s\n\nQuestion: %s\nCorrect answer: %s\nLearner answer: %s\n\n"+
			"In at most three sentences, explain why the correct answer is right, citing the transcript.",
			req.ContextText, req.Question, req.ReferenceAnswer, req.LearnerResponse)
	case InstructionAnswerContextQuestion:
		system = tutorSystemPrompt + " If the excerpt does not contain the answer, say so briefly."
		user = fmt.Sprintf("The learner paused the video here. Transcript around this point:\n%s\n\nLearner question: %s",
			req.ContextText, req.Question)
	default:
		system = tutorSystemPrompt
		user = req.ContextText
	}

	return []AIChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func generateQuestionsPrompt(req GenerationRequest) string {
	count := req.Count
	if count <= 0 {
		count = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transcript excerpt:\n%s\n\n", req.ContextText)
	fmt.Fprintf(&b, "Write %d %s question(s) about the key ideas in this excerpt. ", count, strings.ReplaceAll(string(req.DesiredType), "_", " "))
	b.WriteString(questionRules[req.DesiredType])
	b.WriteString("\n\nRespond with:\n")
	fmt.Fprintf(&b, `{"questions": [%s]}`, questionSchemas[req.DesiredType])

	if req.Strict {
		fmt.Fprintf(&b, "\n\nYour previous answer could not be used. Output ONLY the JSON object, without markdown fences or commentary. "+
			"Every question MUST have \"type\": %q and every required field filled in.", req.DesiredType)
	}
	return b.String()
}
