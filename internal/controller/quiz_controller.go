package controller

import (
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/service"
	"video_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// CreateQuizRequest 出题参数，均可省略，缺省时使用配置
// swagger:model CreateQuizRequest
type CreateQuizRequest struct {
	Count        int                        `json:"count" binding:"gte=0"`
	Type         model.QuestionType         `json:"type"`
	Distribution map[model.QuestionType]int `json:"distribution"`
}

// QuizSessionResponse 学习者视角的出题结果
type QuizSessionResponse struct {
	SessionID string                   `json:"sessionId"`
	VideoID   string                   `json:"videoId"`
	Questions []model.QuestionView     `json:"questions"`
	Manifest  model.GenerationManifest `json:"manifest"`
	CreatedAt time.Time                `json:"createdAt"`
}

func newQuizSessionResponse(session *service.QuizSession) QuizSessionResponse {
	return QuizSessionResponse{
		SessionID: session.ID,
		VideoID:   session.VideoID,
		Questions: session.LearnerQuestions(),
		Manifest:  session.Manifest,
		CreatedAt: session.CreatedAt,
	}
}

// CreateQuiz godoc
// @Summary 为视频生成一组题目
// @Description 题目按片段均匀分布；部分片段出题失败时在 manifest 中说明
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path string true "视频ID"
// @Param request body CreateQuizRequest false "出题参数"
// @Success 201 {object} util.Response{data=QuizSessionResponse}
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/videos/{id}/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	var req CreateQuizRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}

	session, err := c.QuizService.CreateQuiz(ctx.Request.Context(), ctx.Param("id"), service.GenerationOptions{
		Count:        req.Count,
		Type:         req.Type,
		Distribution: req.Distribution,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, newQuizSessionResponse(session))
}

// ListQuizzes godoc
// @Summary 视频的出题记录
// @Tags quizzes
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} util.Response{data=[]model.QuizRun}
// @Router /api/videos/{id}/quizzes [get]
func (c *QuizController) ListQuizzes(ctx *gin.Context) {
	runs, err := c.QuizService.ListRuns(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, runs)
}

// GetQuiz godoc
// @Summary 获取出题结果（不含答案）
// @Tags quizzes
// @Produce json
// @Param sessionId path string true "会话ID"
// @Success 200 {object} util.Response{data=QuizSessionResponse}
// @Router /api/quizzes/{sessionId} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	session, err := c.QuizService.GetSession(ctx.Request.Context(), ctx.Param("sessionId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, newQuizSessionResponse(session))
}

// SubmitAnswer godoc
// @Summary 提交答案并获取反馈
// @Description 反馈包含得分、解释以及可跳转的视频时间范围
// @Tags quizzes
// @Accept json
// @Produce json
// @Param sessionId path string true "会话ID"
// @Param request body model.AnswerSubmission true "作答"
// @Success 200 {object} util.Response{data=model.FeedbackRecord}
// @Router /api/quizzes/{sessionId}/answers [post]
func (c *QuizController) SubmitAnswer(ctx *gin.Context) {
	var sub model.AnswerSubmission
	if err := ctx.ShouldBindJSON(&sub); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	record, err := c.QuizService.SubmitAnswer(ctx.Request.Context(), ctx.Param("sessionId"), sub)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, record)
}
