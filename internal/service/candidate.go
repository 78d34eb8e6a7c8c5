package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"video_quiz_backend/internal/model"

	"github.com/go-playground/validator/v10"
)

var errInvalidCandidate = errors.New("invalid question candidate")

var (
	fencePattern = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*(.*?)\\s*```$")
	blankPattern = regexp.MustCompile(`_{3,}|\[blank\]|\{\{blank\}\}`)
)

const optionLetters = "ABCDEFGH"

var candidateValidator = newCandidateValidator()

func newCandidateValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("blank", func(fl validator.FieldLevel) bool {
		return blankPattern.MatchString(fl.Field().String())
	})
	return v
}

// stringList 兼容字符串、字符串数组以及数字
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if strings.TrimSpace(one) != "" {
			*l = stringList{one}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v != nil {
		*l = stringList{fmt.Sprint(v)}
	}
	return nil
}

type candidateOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// UnmarshalJSON 选项可能直接是字符串
func (o *candidateOption) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		o.Text = text
		return nil
	}

	type plain candidateOption
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = candidateOption(p)
	return nil
}

// questionCandidate 模型返回的原始题目，字段未经校验
type questionCandidate struct {
	Type            string            `json:"type"`
	QuestionText    string            `json:"question_text"`
	Question        string            `json:"question"`
	Options         []candidateOption `json:"options"`
	CorrectAnswer   stringList        `json:"correct_answer"`
	AcceptedAnswers stringList        `json:"accepted_answers"`
	Explanation     string            `json:"explanation"`
	SampleAnswer    string            `json:"sample_answer"`
	KeyPoints       stringList        `json:"key_points"`
	Difficulty      string            `json:"difficulty"`
}

func (c *questionCandidate) prompt() string {
	if p := strings.TrimSpace(c.QuestionText); p != "" {
		return p
	}
	return strings.TrimSpace(c.Question)
}

// inferType 优先使用声明的题型；未声明时有选项为选择题，有空格标记为填空题，否则为简答题
func (c *questionCandidate) inferType() model.QuestionType {
	declared := strings.ToLower(strings.TrimSpace(c.Type))
	declared = strings.NewReplacer(" ", "_", "-", "_").Replace(declared)
	switch declared {
	case "multiple_choice", "mcq", "choice":
		return model.QuestionTypeMultipleChoice
	case "fill_in_the_blank", "fill_in_blank", "fill_blank", "cloze":
		return model.QuestionTypeFillInBlank
	case "short_answer", "open", "open_ended":
		return model.QuestionTypeShortAnswer
	}

	switch {
	case len(c.Options) > 0:
		return model.QuestionTypeMultipleChoice
	case blankPattern.MatchString(c.prompt()):
		return model.QuestionTypeFillInBlank
	default:
		return model.QuestionTypeShortAnswer
	}
}

// parseCandidates 接受 {"questions": [...]}、数组或单个对象，容忍 markdown 代码块包裹
func parseCandidates(raw string) ([]questionCandidate, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: response contains no JSON", errInvalidCandidate)
	}
	text = text[start : end+1]

	if text[0] == '[' {
		var list []questionCandidate
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
		}
		return list, nil
	}

	var envelope struct {
		Questions []questionCandidate `json:"questions"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
	}
	if envelope.Questions != nil {
		return envelope.Questions, nil
	}

	var single questionCandidate
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
	}
	if single.prompt() == "" {
		return nil, fmt.Errorf("%w: response has no questions", errInvalidCandidate)
	}
	return []questionCandidate{single}, nil
}

type multipleChoicePayload struct {
	Prompt    string         `validate:"required"`
	Options   []model.Option `validate:"min=3,max=8"`
	CorrectID string         `validate:"required"`
}

type fillInBlankPayload struct {
	Prompt string `validate:"required,blank"`
	Answer string `validate:"required"`
}

type shortAnswerPayload struct {
	Prompt          string   `validate:"required"`
	ReferenceAnswer string   `validate:"required_without=KeyPoints"`
	KeyPoints       []string `validate:"required_without=ReferenceAnswer"`
}

// toQuestion 校验候选题并转换为封闭类型的 model.Question。
// desired 为具体题型时，推断出的题型必须与之一致。ID 与片段由调用方填写。
func toQuestion(c questionCandidate, desired model.QuestionType) (model.Question, error) {
	actual := c.inferType()
	if desired.Valid() && actual != desired {
		return model.Question{}, fmt.Errorf("%w: got %s, want %s", errInvalidCandidate, actual, desired)
	}

	q := model.Question{
		Type:        actual,
		Prompt:      c.prompt(),
		Difficulty:  normalizeDifficulty(c.Difficulty),
		Explanation: strings.TrimSpace(c.Explanation),
	}

	var err error
	switch actual {
	case model.QuestionTypeMultipleChoice:
		q.MultipleChoice, err = buildMultipleChoice(c)
	case model.QuestionTypeFillInBlank:
		q.FillInBlank, err = buildFillInBlank(c)
	case model.QuestionTypeShortAnswer:
		q.ShortAnswer, err = buildShortAnswer(c)
	}
	if err != nil {
		return model.Question{}, err
	}
	return q, nil
}

func buildMultipleChoice(c questionCandidate) (*model.MultipleChoice, error) {
	options := make([]model.Option, 0, len(c.Options))
	seenID := make(map[string]bool)
	seenText := make(map[string]bool)
	correct := make(map[string]bool)

	for i, o := range c.Options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: option %d has no text", errInvalidCandidate, i+1)
		}
		id := strings.TrimSpace(o.ID)
		if id == "" {
			if i < len(optionLetters) {
				id = optionLetters[i : i+1]
			} else {
				id = strconv.Itoa(i + 1)
			}
		}

		kid, ktext := strings.ToLower(id), strings.ToLower(text)
		if seenID[kid] || seenText[ktext] {
			return nil, fmt.Errorf("%w: duplicate option %q", errInvalidCandidate, id)
		}
		seenID[kid], seenText[ktext] = true, true

		options = append(options, model.Option{ID: id, Text: text})
		if o.IsCorrect {
			correct[id] = true
		}
	}

	// 选项文本与其他选项的 id 相同会让同一作答命中两个选项
	for i, o := range options {
		for j, other := range options {
			if i != j && strings.EqualFold(o.Text, other.ID) {
				return nil, fmt.Errorf("%w: option %q text collides with option id %q", errInvalidCandidate, o.ID, other.ID)
			}
		}
	}

	for _, ans := range c.CorrectAnswer {
		if id, ok := matchOption(options, ans); ok {
			correct[id] = true
		}
	}

	payload := multipleChoicePayload{Prompt: c.prompt(), Options: options}
	if len(correct) == 1 {
		for id := range correct {
			payload.CorrectID = id
		}
	} else if len(correct) > 1 {
		return nil, fmt.Errorf("%w: %d options marked correct", errInvalidCandidate, len(correct))
	}

	if err := candidateValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
	}

	return &model.MultipleChoice{Options: payload.Options, CorrectOptionID: payload.CorrectID}, nil
}

// matchOption 按 id、"A." / "A)" 前缀或选项文本匹配
func matchOption(options []model.Option, answer string) (string, bool) {
	a := strings.ToLower(strings.TrimSpace(answer))
	if a == "" {
		return "", false
	}
	for _, o := range options {
		id := strings.ToLower(o.ID)
		if a == id || a == strings.ToLower(o.Text) {
			return o.ID, true
		}
		for _, sep := range []string{".", ")", ":"} {
			if a == id+sep || strings.HasPrefix(a, id+sep+" ") {
				return o.ID, true
			}
		}
	}
	return "", false
}

func buildFillInBlank(c questionCandidate) (*model.FillInBlank, error) {
	var answer string
	var accepted []string
	seen := make(map[string]bool)

	for _, a := range append(append([]string(nil), c.CorrectAnswer...), c.AcceptedAnswers...) {
		a = strings.TrimSpace(a)
		key := normalizeAnswer(a)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if answer == "" {
			answer = a
			continue
		}
		accepted = append(accepted, a)
	}

	payload := fillInBlankPayload{Prompt: c.prompt(), Answer: answer}
	if err := candidateValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
	}
	return &model.FillInBlank{Answer: answer, AcceptedAnswers: accepted}, nil
}

func buildShortAnswer(c questionCandidate) (*model.ShortAnswer, error) {
	reference := strings.TrimSpace(c.SampleAnswer)
	if reference == "" && len(c.CorrectAnswer) > 0 {
		reference = strings.TrimSpace(strings.Join(c.CorrectAnswer, " "))
	}

	var keyPoints []string
	for _, kp := range c.KeyPoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			keyPoints = append(keyPoints, kp)
		}
	}

	payload := shortAnswerPayload{Prompt: c.prompt(), ReferenceAnswer: reference, KeyPoints: keyPoints}
	if err := candidateValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidCandidate, err)
	}
	return &model.ShortAnswer{ReferenceAnswer: reference, KeyPoints: keyPoints}, nil
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "easy", "medium", "hard":
		return d
	}
	return ""
}

// normalizeAnswer 小写并压缩空白
func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
