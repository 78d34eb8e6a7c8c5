// Package transcript 负责字幕解析、归一化、切分以及片段/题目的时间索引。
package transcript

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"github.com/asticode/go-astisub"
)

type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

var markupPattern = regexp.MustCompile(`<[^>]*>|\{\\[^}]*\}`)

// DetectFormat 优先按扩展名判断，其次看内容是否以 WEBVTT 开头
func DetectFormat(filename string, raw []byte) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "srt":
		return FormatSRT, nil
	case "vtt":
		return FormatVTT, nil
	case "":
	default:
		return "", fmt.Errorf("%w: %s", util.ErrUnsupportedFormat, filepath.Ext(filename))
	}

	trimmed := bytes.TrimLeft(raw, "\ufeff \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("WEBVTT")) {
		return FormatVTT, nil
	}
	return FormatSRT, nil
}

// ParseSubtitles 解析 SRT/VTT 文本并归一化为有序字幕列表
func ParseSubtitles(raw []byte, format Format, minCueDuration time.Duration) ([]model.SubtitleCue, error) {
	var (
		subs *astisub.Subtitles
		err  error
	)
	switch format {
	case FormatSRT:
		subs, err = astisub.ReadFromSRT(bytes.NewReader(raw))
	case FormatVTT:
		subs, err = astisub.ReadFromWebVTT(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", util.ErrIngestion, format, err)
	}

	entries := make([]model.CaptionEntry, 0, len(subs.Items))
	for _, item := range subs.Items {
		var parts []string
		for _, line := range item.Lines {
			for _, li := range line.Items {
				parts = append(parts, li.Text)
			}
		}
		entries = append(entries, model.CaptionEntry{
			Start: model.Timestamp(item.StartAt),
			End:   model.Timestamp(item.EndAt),
			Text:  strings.Join(parts, " "),
		})
	}

	return NormalizeCues(entries, minCueDuration)
}

// NormalizeCues 过滤空文本、按开始时间稳定排序、补全缺失的结束时间。
// 重叠的字幕保持原样，合并交给切分阶段。
func NormalizeCues(entries []model.CaptionEntry, minCueDuration time.Duration) ([]model.SubtitleCue, error) {
	cues := make([]model.SubtitleCue, 0, len(entries))
	for _, e := range entries {
		text := CleanText(e.Text)
		if text == "" {
			continue
		}
		cues = append(cues, model.SubtitleCue{Start: e.Start, End: e.End, Text: text})
	}

	if len(cues) == 0 {
		return nil, fmt.Errorf("%w: no usable cues", util.ErrIngestion)
	}

	sort.SliceStable(cues, func(i, j int) bool {
		return cues[i].Start < cues[j].Start
	})

	for i := range cues {
		if cues[i].End > cues[i].Start {
			continue
		}
		cues[i].End = cues[i].Start + model.Timestamp(minCueDuration)
		for j := i + 1; j < len(cues); j++ {
			if cues[j].Start > cues[i].Start {
				cues[i].End = cues[j].Start
				break
			}
		}
	}

	return cues, nil
}

// CleanText 去掉样式标签并压缩空白
func CleanText(s string) string {
	s = markupPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
