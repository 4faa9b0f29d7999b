package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrProbe is returned when the prober cannot be run, exits non-zero or
	// emits output that does not have the expected shape.
	ErrProbe = errors.New("probe failed")

	// ErrMalformedStream is returned when a classified stream lacks a field
	// it must carry (e.g. a video stream without dimensions).
	ErrMalformedStream = errors.New("malformed stream")
)

const maxProbeTimeout = 30 * time.Second

// Inspector runs ffprobe against input files.
type Inspector struct {
	binary string
}

// NewInspector returns an Inspector using binary, or "ffprobe" from PATH
// when binary is empty.
func NewInspector(binary string) *Inspector {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Inspector{binary: bin}
}

// Probe inspects path and returns its track inventory.
func (i *Inspector) Probe(ctx context.Context, path string) (Info, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Info{}, fmt.Errorf("%w: empty path", ErrProbe)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, i.binary,
		"-v", "error",
		"-of", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Info{}, fmt.Errorf("%w: %s: %w", ErrProbe, path, err)
		}
		return Info{}, fmt.Errorf("%w: %s: %w: %s", ErrProbe, path, err, msg)
	}

	return Parse(stdout.Bytes())
}

// probePayload is the subset of ffprobe JSON output we read. Pointer fields
// distinguish "absent" from "zero".
type probePayload struct {
	Format  *probeFormat   `json:"format"`
	Streams *[]probeStream `json:"streams"`
}

type probeFormat struct {
	Duration *string `json:"duration"`
}

type probeStream struct {
	CodecName *string `json:"codec_name"`
	CodecType *string `json:"codec_type"`
	Duration  *string `json:"duration"`
	Width     *int    `json:"width"`
	Height    *int    `json:"height"`
}

// Parse normalizes raw ffprobe JSON into an Info.
func Parse(data []byte) (Info, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Info{}, fmt.Errorf("%w: parse output: %w", ErrProbe, err)
	}
	if payload.Format == nil {
		return Info{}, fmt.Errorf("%w: output has no format section", ErrProbe)
	}
	if payload.Format.Duration == nil {
		return Info{}, fmt.Errorf("%w: format has no duration", ErrProbe)
	}
	if payload.Streams == nil {
		return Info{}, fmt.Errorf("%w: output has no streams section", ErrProbe)
	}

	duration, err := parseSeconds(*payload.Format.Duration)
	if err != nil {
		return Info{}, fmt.Errorf("%w: format duration: %w", ErrProbe, err)
	}
	if duration <= 0 {
		return Info{}, fmt.Errorf("%w: non-positive duration %v", ErrProbe, duration)
	}

	info := Info{Duration: duration}
	for idx, s := range *payload.Streams {
		if s.CodecType == nil {
			return Info{}, fmt.Errorf("%w: stream %d has no codec_type", ErrProbe, idx)
		}

		var kind StreamKind
		switch *s.CodecType {
		case "video":
			kind = KindVideo
		case "audio":
			kind = KindAudio
		case "subtitle":
			kind = KindSubtitle
		default:
			continue
		}

		stream, err := classify(idx, kind, s, duration)
		if err != nil {
			return Info{}, err
		}

		switch kind {
		case KindVideo:
			info.Video = append(info.Video, stream)
		case KindAudio:
			info.Audio = append(info.Audio, stream)
		case KindSubtitle:
			info.Subtitle = append(info.Subtitle, stream)
		}
	}

	return info, nil
}

func classify(idx int, kind StreamKind, s probeStream, containerDuration float64) (Stream, error) {
	if s.CodecName == nil || strings.TrimSpace(*s.CodecName) == "" {
		return Stream{}, fmt.Errorf("%w: %s stream %d has no codec_name", ErrMalformedStream, kind, idx)
	}

	stream := Stream{
		Codec:    *s.CodecName,
		Kind:     kind,
		Duration: containerDuration,
	}

	if s.Duration != nil {
		d, err := parseSeconds(*s.Duration)
		if err != nil {
			return Stream{}, fmt.Errorf("%w: %s stream %d duration: %w", ErrProbe, kind, idx, err)
		}
		stream.Duration = d
	}

	if kind == KindVideo {
		if s.Width == nil {
			return Stream{}, fmt.Errorf("%w: video stream %d has no width", ErrMalformedStream, idx)
		}
		if s.Height == nil {
			return Stream{}, fmt.Errorf("%w: video stream %d has no height", ErrMalformedStream, idx)
		}
		stream.Width = *s.Width
		stream.Height = *s.Height
	}

	return stream, nil
}

func parseSeconds(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid seconds %q", value)
	}
	return v, nil
}
