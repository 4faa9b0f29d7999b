package manifest

import (
	"fmt"
	"math"
)

// DefaultTargetDuration is the nominal segment length in seconds.
const DefaultTargetDuration = 10.0

// Segment is one entry of a Plan.
type Segment struct {
	Index    int
	Duration float64
	// MediaURI is the fMP4 media segment name, <id>_<index>.m4s.
	MediaURI string
	// SubtitleURI is the WebVTT segment name, <id><index>.vtt.
	SubtitleURI string
}

// Plan is an ordered, gapless split of a total duration into segments.
type Plan []Segment

// PlanSegments splits duration into ceil(duration/target) segments. All but
// the last are target seconds long; the last one holds the remainder, or a
// full target when duration is an exact multiple. A non-positive duration
// or target yields an empty plan.
func PlanSegments(id string, duration, target float64) Plan {
	if !(duration > 0) || !(target > 0) || math.IsInf(duration, 0) {
		return nil
	}

	n := int(math.Ceil(duration / target))
	remainder := math.Mod(duration, target)

	plan := make(Plan, 0, n)
	for i := 0; i < n; i++ {
		d := target
		if i == n-1 && remainder != 0 {
			d = remainder
		}
		plan = append(plan, Segment{
			Index:       i,
			Duration:    d,
			MediaURI:    MediaSegmentName(id, i),
			SubtitleURI: SubtitleSegmentName(id, i),
		})
	}
	return plan
}

// Total returns the summed duration of the plan.
func (p Plan) Total() float64 {
	var sum float64
	for _, s := range p {
		sum += s.Duration
	}
	return sum
}

// MediaSegmentName returns the name ffmpeg gives media segment index.
func MediaSegmentName(id string, index int) string {
	return fmt.Sprintf("%s_%d.m4s", id, index)
}

// SubtitleSegmentName returns the name ffmpeg gives WebVTT segment index.
// There is no separator between id and index.
func SubtitleSegmentName(id string, index int) string {
	return fmt.Sprintf("%s%d.vtt", id, index)
}

// InitSegmentName returns the fMP4 init segment name for id.
func InitSegmentName(id string) string {
	return id + "_init.mp4"
}
