package transcript

import (
	"testing"
	"time"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:02,000
Intro

2
00:00:02,000 --> 00:00:05,000
More

3
00:00:30,000 --> 00:00:33,000
New topic
`

const sampleVTT = `WEBVTT

00:00:00.000 --> 00:00:02.000
Intro

00:00:02.000 --> 00:00:05.000
More
`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		raw      string
		want     Format
		wantErr  error
	}{
		{name: "srt extension", filename: "lecture.srt", raw: sampleSRT, want: FormatSRT},
		{name: "vtt extension upper case", filename: "lecture.VTT", raw: sampleVTT, want: FormatVTT},
		{name: "no extension webvtt header", filename: "captions", raw: "\ufeffWEBVTT\n\n", want: FormatVTT},
		{name: "no extension defaults to srt", filename: "captions", raw: sampleSRT, want: FormatSRT},
		{name: "unsupported extension", filename: "lecture.ass", raw: "", wantErr: util.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.filename, []byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSubtitlesSRT(t *testing.T) {
	cues, err := ParseSubtitles([]byte(sampleSRT), FormatSRT, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, cues, 3)

	assert.Equal(t, model.Ms(0), cues[0].Start)
	assert.Equal(t, model.Ms(2000), cues[0].End)
	assert.Equal(t, "Intro", cues[0].Text)
	assert.Equal(t, model.Ms(30000), cues[2].Start)
	assert.Equal(t, "New topic", cues[2].Text)
}

func TestParseSubtitlesVTT(t *testing.T) {
	cues, err := ParseSubtitles([]byte(sampleVTT), FormatVTT, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, "More", cues[1].Text)
	assert.Equal(t, model.Ms(5000), cues[1].End)
}

func TestParseSubtitlesUnsupportedFormat(t *testing.T) {
	_, err := ParseSubtitles([]byte(sampleSRT), Format("ass"), time.Second)
	assert.ErrorIs(t, err, util.ErrUnsupportedFormat)
}

func TestNormalizeCuesSortsAndDropsEmpty(t *testing.T) {
	entries := []model.CaptionEntry{
		{Start: model.Ms(5000), End: model.Ms(6000), Text: "second"},
		{Start: model.Ms(1000), End: model.Ms(2000), Text: "  <i>first</i>  "},
		{Start: model.Ms(3000), End: model.Ms(4000), Text: "   "},
	}

	cues, err := NormalizeCues(entries, time.Second)
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, "first", cues[0].Text)
	assert.Equal(t, "second", cues[1].Text)
}

func TestNormalizeCuesFillsMissingEnd(t *testing.T) {
	entries := []model.CaptionEntry{
		{Start: model.Ms(0), Text: "no end"},
		{Start: model.Ms(1500), End: model.Ms(3000), Text: "next"},
		{Start: model.Ms(10000), Text: "last"},
	}

	cues, err := NormalizeCues(entries, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, model.Ms(1500), cues[0].End, "missing end borrows next start")
	assert.Equal(t, model.Ms(12000), cues[2].End, "last cue falls back to minimum duration")
}

func TestNormalizeCuesNoUsableCues(t *testing.T) {
	_, err := NormalizeCues([]model.CaptionEntry{{Start: 0, End: model.Ms(1000), Text: "<b></b>"}}, time.Second)
	assert.ErrorIs(t, err, util.ErrIngestion)

	_, err = NormalizeCues(nil, time.Second)
	assert.ErrorIs(t, err, util.ErrIngestion)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "hello world", CleanText("<i>hello</i>\n  world"))
	assert.Equal(t, "styled", CleanText(`{\an8}styled`))
	assert.Equal(t, "", CleanText(" \t "))
}
