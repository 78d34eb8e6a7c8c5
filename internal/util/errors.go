package util

import "errors"

var (
	// ErrIngestion 字幕无法解析或过滤后没有可用条目，本次流程终止
	ErrIngestion = errors.New("transcript ingestion failed")
	// ErrIndexConsistency 时间索引不变量被破坏，属于程序缺陷
	ErrIndexConsistency = errors.New("temporal index consistency violated")
	// ErrUnknownQuestion 题目不属于当前出题批次
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrServiceUnavailable 大模型服务不可用或超时，调用方按降级策略处理
	ErrServiceUnavailable = errors.New("generative service unavailable")
	// ErrNoContext 暂停时间点不在任何片段覆盖范围内
	ErrNoContext = errors.New("no content at this point of the video")

	ErrVideoNotFound      = errors.New("video not found")
	ErrSessionNotFound    = errors.New("quiz session not found")
	ErrUnsupportedFormat  = errors.New("unsupported subtitle format")
	ErrInvalidYouTubeURL  = errors.New("invalid youtube url")
	ErrNoTranscriptSource = errors.New("video has neither subtitles nor an embedded subtitle stream")
	ErrInvalidOptions     = errors.New("invalid generation options")
)
