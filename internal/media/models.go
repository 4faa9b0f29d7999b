package media

// StreamKind classifies an elementary stream. Only the kinds below are kept;
// everything else reported by the prober is dropped.
type StreamKind int

const (
	KindVideo StreamKind = iota
	KindAudio
	KindSubtitle
)

// String returns the ffprobe codec_type for the kind.
func (k StreamKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Stream is one classified elementary stream.
type Stream struct {
	Codec string
	Kind  StreamKind
	// Duration in seconds. Inherited from the container when the stream
	// does not report its own.
	Duration float64
	// Width and Height are set for video streams only.
	Width  int
	Height int
}

// Info is the normalized track inventory of one input file.
type Info struct {
	Duration float64
	Video    []Stream
	Audio    []Stream
	Subtitle []Stream
}

// Streams returns the streams of the given kind in probe order.
func (i Info) Streams(kind StreamKind) []Stream {
	switch kind {
	case KindVideo:
		return i.Video
	case KindAudio:
		return i.Audio
	case KindSubtitle:
		return i.Subtitle
	default:
		return nil
	}
}

// HasSubtitles reports whether at least one subtitle stream was found.
func (i Info) HasSubtitles() bool {
	return len(i.Subtitle) > 0
}
