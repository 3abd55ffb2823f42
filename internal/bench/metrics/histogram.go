package metrics

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Bucket is one latency histogram range in milliseconds, [Lower, Upper).
// Upper is zero for the open-ended last bucket.
type Bucket struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower_ms"`
	Upper float64 `json:"upper_ms"`
	Count int     `json:"count"`
}

var bucketBounds = []struct {
	label string
	upper float64
}{
	{"<1ms", 1},
	{"1-5ms", 5},
	{"5-10ms", 10},
	{"10-50ms", 50},
	{"50-100ms", 100},
	{"100-500ms", 500},
	{"500ms-1s", 1000},
	{"1s-5s", 5000},
	{">5s", 0},
}

// LatencyDistribution keeps buckets in ascending order; it marshals as a label->count object.
type LatencyDistribution []Bucket

func NewLatencyDistribution(durationsMs []float64) LatencyDistribution {
	dist := make(LatencyDistribution, len(bucketBounds))
	lower := 0.0
	for i, b := range bucketBounds {
		dist[i] = Bucket{Label: b.label, Lower: lower, Upper: b.upper}
		lower = b.upper
	}

	for _, d := range durationsMs {
		dist[bucketIndex(d)].Count++
	}
	return dist
}

func bucketIndex(ms float64) int {
	for i, b := range bucketBounds {
		if b.upper == 0 || ms < b.upper {
			return i
		}
	}
	return len(bucketBounds) - 1
}

func (d LatencyDistribution) Count(label string) int {
	for _, b := range d {
		if b.Label == label {
			return b.Count
		}
	}
	return 0
}

func (d LatencyDistribution) Total() int {
	total := 0
	for _, b := range d {
		total += b.Count
	}
	return total
}

func (d LatencyDistribution) Map() map[string]int {
	out := make(map[string]int, len(d))
	for _, b := range d {
		out[b.Label] = b.Count
	}
	return out
}

func (d LatencyDistribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, b := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		// labels such as "<1ms" are written as is, not as \u003c escapes
		if err := enc.Encode(b.Label); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(b.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *LatencyDistribution) UnmarshalJSON(data []byte) error {
	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	dist := NewLatencyDistribution(nil)
	for i := range dist {
		dist[i].Count = counts[dist[i].Label]
	}
	*d = dist
	return nil
}
