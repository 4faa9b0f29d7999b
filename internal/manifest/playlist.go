package manifest

import (
	"fmt"
	"math"
	"strings"
)

const (
	subtitleGroupID  = "subs"
	bandwidth        = 5438980
	averageBandwidth = 2868620
)

// RenderMediaPlaylist builds the VOD media playlist for plan. Every segment
// is listed up front, before the encoder has produced any of them.
func RenderMediaPlaylist(plan Plan, target float64, initSegment string) string {
	var b strings.Builder

	writeHeader(&b, target)
	b.WriteString(fmt.Sprintf("#EXT-X-MAP:URI=\"%s\"\n", initSegment))
	for _, seg := range plan {
		b.WriteString(fmt.Sprintf("#EXTINF:%.6f,\n", seg.Duration))
		b.WriteString(seg.MediaURI)
		b.WriteString("\n")
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return b.String()
}

// RenderSubtitlePlaylist builds the WebVTT playlist for plan.
func RenderSubtitlePlaylist(plan Plan, target float64) string {
	var b strings.Builder

	writeHeader(&b, target)
	for _, seg := range plan {
		b.WriteString(fmt.Sprintf("#EXTINF:%.6f,\n", seg.Duration))
		b.WriteString(seg.SubtitleURI)
		b.WriteString("\n")
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return b.String()
}

// RenderMasterPlaylist builds the master playlist referencing the media
// playlist and, when hasSubtitles is set, the subtitle rendition group.
func RenderMasterPlaylist(mediaPlaylist, subtitlePlaylist string, hasSubtitles bool) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:4\n")

	if hasSubtitles {
		b.WriteString(fmt.Sprintf(
			"#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"%s\",NAME=\"English\",DEFAULT=YES,AUTOSELECT=YES,FORCED=NO,LANGUAGE=\"en\",URI=\"%s\"\n",
			subtitleGroupID,
			subtitlePlaylist,
		))
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,SUBTITLES=\"%s\"\n",
			bandwidth, averageBandwidth, subtitleGroupID,
		))
	} else {
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d\n",
			bandwidth, averageBandwidth,
		))
	}

	b.WriteString(mediaPlaylist)
	b.WriteString("\n")

	return b.String()
}

// targetDurationTag returns the #EXT-X-TARGETDURATION value, one second
// above the nominal segment length.
func targetDurationTag(target float64) int {
	if target <= 0 {
		return 1
	}
	return int(math.Ceil(target)) + 1
}

func writeHeader(b *strings.Builder, target float64) {
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", targetDurationTag(target)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
}
