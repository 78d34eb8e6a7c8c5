package model

// CaptionEntry 字幕来源提供的原始条目，End 为 0 表示来源未给出结束时间
type CaptionEntry struct {
	Start Timestamp
	End   Timestamp
	Text  string
}

// SubtitleCue 归一化后的字幕条目，解析完成后不再修改
type SubtitleCue struct {
	Start Timestamp `json:"startMs"`
	End   Timestamp `json:"endMs"`
	Text  string    `json:"text"`
}

func (c SubtitleCue) Range() TimeRange {
	return TimeRange{Start: c.Start, End: c.End}
}

// Segment 由若干连续字幕组成的内容单元，是出题与时间定位的基本单位
type Segment struct {
	ID    int           `json:"id"`
	Start Timestamp     `json:"startMs"`
	End   Timestamp     `json:"endMs"`
	Text  string        `json:"text"`
	Cues  []SubtitleCue `json:"cues"`
}

func (s Segment) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}
