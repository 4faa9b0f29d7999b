package encoder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"hls-packager/internal/manifest"
	"hls-packager/internal/profile"
)

// Params describes one HLS packaging run.
type Params struct {
	Input  string
	ID     string
	CDNDir string
	// TargetSeconds is the segment length; it must match the value the
	// manifests were planned with.
	TargetSeconds float64
	Video         profile.Args
	Audio         profile.Args
	Subtitle      profile.Args
}

// BuildArgs composes the full ffmpeg argument vector: global flags and
// input, then the video, audio and subtitle groups in that order, then the
// HLS muxer flags.
func BuildArgs(p Params) []string {
	target := p.TargetSeconds
	if target <= 0 {
		target = manifest.DefaultTargetDuration
	}
	seconds := strconv.FormatFloat(target, 'f', -1, 64)

	args := []string{
		"-v", "error",
		"-ss", "0",
		"-i", p.Input,
		"-copyts",
		"-y",
	}

	args = append(args, p.Video...)
	args = append(args, p.Audio...)
	args = append(args, p.Subtitle...)

	args = append(args,
		"-start_at_zero",
		"-vsync", "passthrough",
		"-avoid_negative_ts", "disabled",
		"-max_muxing_queue_size", "2048",
		"-f", "hls",
		"-start_number", "0",
		"-hls_flags", "temp_file",
		"-max_delay", "5000000",
		"-hls_fmp4_init_filename", manifest.InitSegmentName(p.ID),
		"-hls_time", seconds,
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%s)", seconds),
		"-hls_segment_type", "1",
		"-hls_segment_filename", filepath.Join(p.CDNDir, p.ID+"_%d.m4s"),
		filepath.Join(p.CDNDir, p.ID+".m3u8"),
	)

	return args
}
