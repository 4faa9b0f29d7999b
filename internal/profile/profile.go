// Package profile decides, per track kind, whether an input track can be
// copied into the HLS output as-is or has to be re-encoded, and renders that
// decision as ffmpeg arguments.
package profile

import (
	"fmt"

	"hls-packager/internal/media"
)

// Mode is the packaging strategy chosen for one track kind.
type Mode string

const (
	// Passthrough copies the bitstream unmodified (transmux).
	Passthrough Mode = "passthrough"
	// Transcode re-encodes into the kind's default codec.
	Transcode Mode = "transcode"
	// Omit drops the track kind from the output.
	Omit Mode = "omit"
)

// Args is an ordered list of encoder arguments for one track kind. An empty
// Args omits the track entirely.
type Args []string

// Decision is the outcome of Select for one track kind.
type Decision struct {
	Kind        media.StreamKind
	Mode        Mode
	StreamIndex int
	// Codec is the output codec: the copied codec for Passthrough, the
	// target encoder for Transcode.
	Codec string
}

type policy struct {
	specifier  string
	compatible string
	target     string
}

// Subtitles have no compatible codec: HLS wants WebVTT, so they are always
// converted.
var policies = map[media.StreamKind]policy{
	media.KindVideo:    {specifier: "v", compatible: "h264", target: "libx264"},
	media.KindAudio:    {specifier: "a", compatible: "aac", target: "aac"},
	media.KindSubtitle: {specifier: "s", target: "webvtt"},
}

// Decide applies the packaging policy to the streams of one kind, given in
// probe order. The first stream carrying the compatible codec is copied;
// otherwise the first stream of the kind is transcoded. No subtitle streams
// means the subtitle track is omitted.
func Decide(kind media.StreamKind, streams []media.Stream) Decision {
	p, ok := policies[kind]
	if !ok {
		return Decision{Kind: kind, Mode: Omit}
	}

	if kind == media.KindSubtitle && len(streams) == 0 {
		return Decision{Kind: kind, Mode: Omit}
	}

	if p.compatible != "" {
		for i, s := range streams {
			if s.Codec == p.compatible {
				return Decision{Kind: kind, Mode: Passthrough, StreamIndex: i, Codec: s.Codec}
			}
		}
	}

	return Decision{Kind: kind, Mode: Transcode, StreamIndex: 0, Codec: p.target}
}

// Args renders the decision as ffmpeg -map/-c arguments.
func (d Decision) Args() Args {
	p, ok := policies[d.Kind]
	if !ok || d.Mode == Omit {
		return Args{}
	}

	codec := d.Codec
	if d.Mode == Passthrough {
		codec = "copy"
	}

	return Args{
		"-map", fmt.Sprintf("0:%s:%d", p.specifier, d.StreamIndex),
		"-c:" + p.specifier, codec,
	}
}

// Select returns the encoder arguments for the streams of one kind.
func Select(kind media.StreamKind, streams []media.Stream) Args {
	return Decide(kind, streams).Args()
}
