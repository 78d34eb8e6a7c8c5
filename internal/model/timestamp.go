package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp 视频时间轴上的偏移量，JSON 中以毫秒整数表示
type Timestamp time.Duration

func Ms(ms int64) Timestamp {
	return Timestamp(time.Duration(ms) * time.Millisecond)
}

func Seconds(s float64) Timestamp {
	return Timestamp(time.Duration(s * float64(time.Second)))
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t)
}

func (t Timestamp) Milliseconds() int64 {
	return time.Duration(t).Milliseconds()
}

// String 格式化为 mm:ss 或 hh:mm:ss
func (t Timestamp) String() string {
	d := time.Duration(t).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Milliseconds())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*t = Ms(ms)
	return nil
}

// TimeRange 半开区间 [Start, End)
type TimeRange struct {
	Start Timestamp `json:"startMs"`
	End   Timestamp `json:"endMs"`
}

func (r TimeRange) Contains(t Timestamp) bool {
	return t >= r.Start && t < r.End
}

func (r TimeRange) Duration() time.Duration {
	return time.Duration(r.End - r.Start)
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}
