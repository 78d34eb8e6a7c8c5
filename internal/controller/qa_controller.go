package controller

import (
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/service"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamErrorMessage = "The assistant stopped responding."

type QAController struct {
	qaService *service.QAService
}

func NewQAController(qaService *service.QAService) *QAController {
	return &QAController{qaService: qaService}
}

// Ask 视频暂停时提问
// @Summary 基于暂停位置的上下文问答
// @Description 以暂停点所在片段及相邻片段为上下文回答；模型不可用时返回该段字幕原文并标记 degraded
// @Tags QA
// @Accept json
// @Produce json
// @Param id path string true "视频ID"
// @Param request body model.ContextQuery true "暂停时间与问题"
// @Success 200 {object} util.Response{data=model.ContextAnswer}
// @Failure 404 {object} util.Response "暂停点没有对应内容"
// @Router /api/videos/{id}/ask [post]
func (c *QAController) Ask(ctx *gin.Context) {
	var query model.ContextQuery
	if err := ctx.ShouldBindJSON(&query); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	answer, err := c.qaService.Ask(ctx.Request.Context(), ctx.Param("id"), query)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, answer)
}

// AskStream 流式问答
// @Summary 基于暂停位置的上下文问答（SSE）
// @Description 依次推送 source（来源片段）、message（回答片段）、error、end 事件
// @Tags QA
// @Accept json
// @Produce text/event-stream
// @Param id path string true "视频ID"
// @Param request body model.ContextQuery true "暂停时间与问题"
// @Router /api/videos/{id}/ask/stream [post]
func (c *QAController) AskStream(ctx *gin.Context) {
	var query model.ContextQuery
	if err := ctx.ShouldBindJSON(&query); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	videoID := ctx.Param("id")
	sources, stream, errChan, err := c.qaService.AskStream(ctx.Request.Context(), videoID, query)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	// 设置SSE响应头
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("Transfer-Encoding", "chunked")

	ctx.SSEvent("source", gin.H{"sourceSegmentIds": sources})
	ctx.Writer.Flush()

	received := false
	for content := range stream {
		received = true
		ctx.SSEvent("message", content)
		ctx.Writer.Flush()
	}

	if err := <-errChan; err != nil {
		logger.Log.Warn("QA stream interrupted", zap.String("videoId", videoID), zap.Error(err))
		ctx.SSEvent("error", streamErrorMessage)
		// 一个字都没输出时退回字幕原文
		if !received {
			if text := c.qaService.DegradedText(ctx.Request.Context(), videoID, query.PauseTimestamp); text != "" {
				ctx.SSEvent("message", text)
			}
		}
		ctx.Writer.Flush()
	}

	ctx.SSEvent("end", "done")
	ctx.Writer.Flush()
}
