package transcript

import (
	"fmt"
	"sort"

	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"
)

// TemporalIndex 片段 ↔ 题目 ↔ 时间点的双向索引，只支持插入。
// 写入只发生在出题阶段（单一写者），出题完成后才交给判分与问答读取，
// 因此内部不加锁。
type TemporalIndex struct {
	segments           []model.Segment
	positions          map[int]int
	questionsBySegment map[int][]string
	segmentByQuestion  map[string]int
}

func NewTemporalIndex() *TemporalIndex {
	return &TemporalIndex{
		positions:          make(map[int]int),
		questionsBySegment: make(map[int][]string),
		segmentByQuestion:  make(map[string]int),
	}
}

// NewTemporalIndexFromSegments 按顺序注册全部片段
func NewTemporalIndexFromSegments(segments []model.Segment) (*TemporalIndex, error) {
	idx := NewTemporalIndex()
	for _, seg := range segments {
		if err := idx.RegisterSegment(seg); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// RegisterSegment 片段必须按时间顺序注册且互不重叠
func (x *TemporalIndex) RegisterSegment(seg model.Segment) error {
	if _, ok := x.positions[seg.ID]; ok {
		return fmt.Errorf("%w: segment %d already registered", util.ErrIndexConsistency, seg.ID)
	}
	if seg.End < seg.Start {
		return fmt.Errorf("%w: segment %d ends before it starts", util.ErrIndexConsistency, seg.ID)
	}
	if n := len(x.segments); n > 0 && seg.Start < x.segments[n-1].End {
		return fmt.Errorf("%w: segment %d overlaps or precedes segment %d",
			util.ErrIndexConsistency, seg.ID, x.segments[n-1].ID)
	}

	x.positions[seg.ID] = len(x.segments)
	x.segments = append(x.segments, seg)
	return nil
}

// LinkQuestion 题目只能挂在已注册的片段上，且只能有一个主片段
func (x *TemporalIndex) LinkQuestion(questionID string, segmentID int) error {
	if _, ok := x.positions[segmentID]; !ok {
		return fmt.Errorf("%w: question %s references unregistered segment %d",
			util.ErrIndexConsistency, questionID, segmentID)
	}
	if prev, ok := x.segmentByQuestion[questionID]; ok {
		return fmt.Errorf("%w: question %s already linked to segment %d",
			util.ErrIndexConsistency, questionID, prev)
	}

	x.segmentByQuestion[questionID] = segmentID
	x.questionsBySegment[segmentID] = append(x.questionsBySegment[segmentID], questionID)
	return nil
}

// SegmentAt 二分查找包含 ts 的片段；ts 落在两个片段之间的空隙时返回其后的第一个片段。
// 早于第一个片段或不早于最后一个片段结束时间时返回 ErrNoContext。
func (x *TemporalIndex) SegmentAt(ts model.Timestamp) (model.Segment, error) {
	n := len(x.segments)
	if n == 0 || ts < x.segments[0].Start {
		return model.Segment{}, fmt.Errorf("%w: %s precedes the first segment", util.ErrNoContext, ts)
	}

	i := sort.Search(n, func(i int) bool {
		return x.segments[i].End > ts
	})
	if i == n {
		return model.Segment{}, fmt.Errorf("%w: %s follows the last segment", util.ErrNoContext, ts)
	}
	return x.segments[i], nil
}

func (x *TemporalIndex) QuestionsOf(segmentID int) []string {
	return append([]string(nil), x.questionsBySegment[segmentID]...)
}

func (x *TemporalIndex) SegmentOf(questionID string) (model.Segment, error) {
	segID, ok := x.segmentByQuestion[questionID]
	if !ok {
		return model.Segment{}, fmt.Errorf("%w: %s", util.ErrUnknownQuestion, questionID)
	}
	return x.segments[x.positions[segID]], nil
}

func (x *TemporalIndex) Segment(id int) (model.Segment, bool) {
	pos, ok := x.positions[id]
	if !ok {
		return model.Segment{}, false
	}
	return x.segments[pos], true
}

// Neighbors 返回以 segmentID 为中心、前后各 window 个片段（按时间顺序，越界截断）
func (x *TemporalIndex) Neighbors(segmentID int, window int) []model.Segment {
	pos, ok := x.positions[segmentID]
	if !ok {
		return nil
	}
	if window < 0 {
		window = 0
	}
	lo, hi := pos-window, pos+window+1
	if lo < 0 {
		lo = 0
	}
	if hi > len(x.segments) {
		hi = len(x.segments)
	}
	return append([]model.Segment(nil), x.segments[lo:hi]...)
}

func (x *TemporalIndex) Segments() []model.Segment {
	return append([]model.Segment(nil), x.segments...)
}

func (x *TemporalIndex) Len() int {
	return len(x.segments)
}
