package controller

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"video_quiz_backend/internal/service"
	"video_quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 字幕文件上限 5MB
const maxSubtitleSize = 5 << 20

type VideoController struct {
	VideoService *service.VideoService
}

func NewVideoController(videoService *service.VideoService) *VideoController {
	return &VideoController{VideoService: videoService}
}

// RegisterYouTubeRequest 注册 YouTube 视频
// swagger:model RegisterYouTubeRequest
type RegisterYouTubeRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

// CreateVideo godoc
// @Summary 导入视频
// @Description JSON 请求体注册 YouTube 链接；multipart 表单上传本地视频和/或字幕文件（srt、vtt）
// @Tags videos
// @Accept json,mpfd
// @Produce json
// @Param request body RegisterYouTubeRequest false "YouTube 链接"
// @Param title formData string false "标题"
// @Param video formData file false "视频文件"
// @Param subtitle formData file false "字幕文件"
// @Success 201 {object} util.Response{data=model.Video}
// @Failure 400 {object} util.Response "Bad Request"
// @Failure 422 {object} util.Response "字幕无法解析"
// @Router /api/videos [post]
func (c *VideoController) CreateVideo(ctx *gin.Context) {
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		c.uploadVideo(ctx)
		return
	}

	var req RegisterYouTubeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	video, err := c.VideoService.IngestYouTube(ctx.Request.Context(), req.URL, strings.TrimSpace(req.Title))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, video)
}

func (c *VideoController) uploadVideo(ctx *gin.Context) {
	in := service.UploadInput{Title: ctx.PostForm("title")}

	if file, err := ctx.FormFile("subtitle"); err == nil {
		if !util.HasExtension(file.Filename, util.AllowedSubtitleExtensions) {
			util.BadRequest(ctx, "Subtitle must be an .srt or .vtt file")
			return
		}
		if file.Size > maxSubtitleSize {
			util.BadRequest(ctx, "Subtitle file is too large")
			return
		}
		raw, err := readFormFile(file)
		if err != nil {
			util.BadRequest(ctx, "Failed to read subtitle file")
			return
		}
		in.SubtitleFilename, in.Subtitle = file.Filename, raw
	}

	if file, err := ctx.FormFile("video"); err == nil {
		if !util.HasExtension(file.Filename, util.AllowedVideoExtensions) {
			util.BadRequest(ctx, "Unsupported video file type")
			return
		}
		if err := checkVideoMime(file); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}

		tmp, err := os.CreateTemp("", "video-quiz-*"+filepath.Ext(file.Filename))
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := ctx.SaveUploadedFile(file, tmp.Name()); err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		in.VideoFilename, in.VideoPath = file.Filename, tmp.Name()
	}

	if in.VideoPath == "" && len(in.Subtitle) == 0 {
		util.BadRequest(ctx, "A video or subtitle file is required")
		return
	}

	video, err := c.VideoService.IngestUpload(ctx.Request.Context(), in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, video)
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func checkVideoMime(file *multipart.FileHeader) error {
	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	// 部分容器格式（如 mkv）无法识别，按二进制流放行
	_, err = util.ValidateMimeType(f, []string{util.MimeVideo, util.MimeOctetStream})
	return err
}

// ListVideos godoc
// @Summary 视频列表
// @Tags videos
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/videos [get]
func (c *VideoController) ListVideos(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	videos, total, err := c.VideoService.List(ctx.Request.Context(), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: videos, Total: total, Page: page, Limit: limit})
}

// GetVideo godoc
// @Summary 视频详情
// @Tags videos
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} util.Response{data=model.Video}
// @Failure 404 {object} util.Response "Not Found"
// @Router /api/videos/{id} [get]
func (c *VideoController) GetVideo(ctx *gin.Context) {
	video, err := c.VideoService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, video)
}

// GetSegments godoc
// @Summary 视频的字幕片段
// @Tags videos
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} util.Response{data=[]model.Segment}
// @Router /api/videos/{id}/segments [get]
func (c *VideoController) GetSegments(ctx *gin.Context) {
	segments, err := c.VideoService.Segments(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, segments)
}

// DeleteVideo godoc
// @Summary 删除视频及其出题记录
// @Tags videos
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} util.Response
// @Router /api/videos/{id} [delete]
func (c *VideoController) DeleteVideo(ctx *gin.Context) {
	if err := c.VideoService.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
