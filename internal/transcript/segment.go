package transcript

import (
	"strings"
	"time"
	"unicode/utf8"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
)

// SegmentationConfig 切分阈值，零值表示不限制
type SegmentationConfig struct {
	SilenceThreshold time.Duration
	MaxDuration      time.Duration
	MaxTextLength    int
}

func SegmentationConfigFrom(p config.PipelineConfig) SegmentationConfig {
	return SegmentationConfig{
		SilenceThreshold: p.SilenceThreshold(),
		MaxDuration:      p.MaxSegmentDuration(),
		MaxTextLength:    p.MaxSegmentTextLength,
	}
}

type segmentBuilder struct {
	start   model.Timestamp
	end     model.Timestamp
	textLen int
	texts   []string
	cues    []model.SubtitleCue
}

func newSegmentBuilder(cue model.SubtitleCue) *segmentBuilder {
	b := &segmentBuilder{start: cue.Start, end: cue.End}
	b.add(cue)
	return b
}

func (b *segmentBuilder) add(cue model.SubtitleCue) {
	if cue.End > b.end {
		b.end = cue.End
	}
	if len(b.texts) > 0 {
		b.textLen++
	}
	b.textLen += utf8.RuneCountInString(cue.Text)
	b.texts = append(b.texts, cue.Text)
	b.cues = append(b.cues, cue)
}

func (b *segmentBuilder) build(id int) model.Segment {
	return model.Segment{
		ID:    id,
		Start: b.start,
		End:   b.end,
		Text:  strings.Join(b.texts, " "),
		Cues:  b.cues,
	}
}

// shouldSplit 判断 cue 是否开启新片段。与当前片段时间重叠的 cue 必须并入，
// 否则相邻片段会重叠。
func (cfg SegmentationConfig) shouldSplit(b *segmentBuilder, cue model.SubtitleCue) bool {
	if cue.Start < b.end {
		return false
	}

	if cfg.SilenceThreshold > 0 && time.Duration(cue.Start-b.end) > cfg.SilenceThreshold {
		return true
	}

	end := b.end
	if cue.End > end {
		end = cue.End
	}
	if cfg.MaxDuration > 0 && time.Duration(end-b.start) > cfg.MaxDuration {
		return true
	}

	if cfg.MaxTextLength > 0 && b.textLen+1+utf8.RuneCountInString(cue.Text) > cfg.MaxTextLength {
		return true
	}

	return false
}

// BuildSegments 将有序字幕分组为片段，编号从 0 开始连续递增。
// 单条超长字幕自成一个片段，不会被拆开。相同输入与配置总是得到相同边界。
func BuildSegments(cues []model.SubtitleCue, cfg SegmentationConfig) []model.Segment {
	if len(cues) == 0 {
		return nil
	}

	var segments []model.Segment
	var current *segmentBuilder

	for _, cue := range cues {
		if current != nil && cfg.shouldSplit(current, cue) {
			segments = append(segments, current.build(len(segments)))
			current = nil
		}
		if current == nil {
			current = newSegmentBuilder(cue)
			continue
		}
		current.add(cue)
	}
	segments = append(segments, current.build(len(segments)))

	return segments
}
