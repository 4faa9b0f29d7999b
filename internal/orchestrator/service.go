package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hls-packager/internal/encoder"
	"hls-packager/internal/manifest"
	"hls-packager/internal/media"
	"hls-packager/internal/platform/metrics"
	"hls-packager/internal/profile"
)

// ErrInvalidRequest is returned for an unusable job id or input path.
var ErrInvalidRequest = errors.New("invalid request")

// Inspector produces the track inventory of an input file.
type Inspector interface {
	Probe(ctx context.Context, path string) (media.Info, error)
}

// Spawner starts an encoder and reports its exit through onExit.
type Spawner interface {
	Spawn(args []string, onExit func(error)) (*encoder.Process, error)
}

// ManifestWriter writes the playlists of a job. Dir is also where the
// encoder writes segments, so playlists and segments share one directory.
type ManifestWriter interface {
	Write(id string, duration, target float64, hasSubtitles bool) (manifest.Files, error)
	Dir() string
}

// Options configures a Service.
type Options struct {
	Inspector Inspector
	Spawner   Spawner
	Writer    ManifestWriter

	// TargetDuration is the segment length in seconds.
	// Default: manifest.DefaultTargetDuration.
	TargetDuration float64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service is the composition root of a play request: it deduplicates jobs
// through the Repository and, for new ids, probes, selects profiles, writes
// manifests and spawns the encoder.
type Service struct {
	repo    Repository
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewService returns a Service using repo for job state.
func NewService(repo Repository, opts Options) *Service {
	if opts.TargetDuration <= 0 {
		opts.TargetDuration = manifest.DefaultTargetDuration
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:    repo,
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		tracer:  otel.Tracer("hls-packager/orchestrator"),
	}
}

// PlayVideo returns the state of job id, starting it from the file at path
// if the id has never been started. A Done job stays Done even if its
// output was removed since.
func (s *Service) PlayVideo(ctx context.Context, id JobID, path string) (JobState, error) {
	ctx, span := s.tracer.Start(ctx, "orchestrator.PlayVideo", trace.WithAttributes(
		attribute.String("job.id", string(id)),
		attribute.String("media.path", path),
	))
	defer span.End()

	if err := validate(id, path); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	state, err := s.repo.GetOrStart(ctx, id, path, func() error {
		// Start is not bound to the caller's cancellation; waiters share
		// its outcome.
		return s.start(context.WithoutCancel(ctx), id, path)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("job.state", string(state)))
	return state, nil
}

// Job returns the registry record for id.
func (s *Service) Job(id JobID) (Job, bool) {
	return s.repo.Get(id)
}

// InProgressCount returns the number of running jobs.
func (s *Service) InProgressCount() int {
	n, _ := s.repo.Counts()
	return n
}

// CDNDir returns the output directory.
func (s *Service) CDNDir() string {
	return s.opts.Writer.Dir()
}

// start runs once per new job id. Manifests are fully written before the
// encoder starts, since the encoder's segment names must match them.
func (s *Service) start(ctx context.Context, id JobID, path string) error {
	log := s.log.With(slog.String("job_id", string(id)), slog.String("path", path))

	info, err := s.probe(ctx, path)
	if err != nil {
		s.failStart(log, "probe", err)
		return err
	}

	decisions := make(map[media.StreamKind]profile.Decision, 3)
	for _, kind := range []media.StreamKind{media.KindVideo, media.KindAudio, media.KindSubtitle} {
		d := profile.Decide(kind, info.Streams(kind))
		decisions[kind] = d
		s.metrics.IncTrackDecision(d.Kind.String(), string(d.Mode))
		log.Debug("track decision",
			slog.String("kind", d.Kind.String()),
			slog.String("mode", string(d.Mode)),
			slog.Int("stream_index", d.StreamIndex),
			slog.String("codec", d.Codec))
	}
	subtitle := decisions[media.KindSubtitle]

	_, span := s.tracer.Start(ctx, "manifest.Write")
	files, err := s.opts.Writer.Write(string(id), info.Duration, s.opts.TargetDuration, subtitle.Mode != profile.Omit)
	span.End()
	if err != nil {
		s.failStart(log, "manifest", err)
		return err
	}

	args := encoder.BuildArgs(encoder.Params{
		Input:         path,
		ID:            string(id),
		CDNDir:        s.opts.Writer.Dir(),
		TargetSeconds: s.opts.TargetDuration,
		Video:         decisions[media.KindVideo].Args(),
		Audio:         decisions[media.KindAudio].Args(),
		Subtitle:      subtitle.Args(),
	})

	started := time.Now()
	_, span = s.tracer.Start(ctx, "encoder.Spawn")
	proc, err := s.opts.Spawner.Spawn(args, func(exitErr error) {
		s.finish(log, id, started, exitErr)
	})
	span.End()
	if err != nil {
		s.failStart(log, "spawn", err)
		return err
	}

	s.metrics.IncJobsStarted()
	log.Info("job started",
		slog.Int("pid", proc.PID),
		slog.Float64("duration_s", info.Duration),
		slog.Int("segments", files.Segments),
		slog.Bool("subtitles", files.SubtitlePlaylist != ""))
	return nil
}

func (s *Service) probe(ctx context.Context, path string) (media.Info, error) {
	ctx, span := s.tracer.Start(ctx, "media.Probe")
	defer span.End()

	info, err := s.opts.Inspector.Probe(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return media.Info{}, err
	}
	span.SetAttributes(
		attribute.Float64("media.duration", info.Duration),
		attribute.Int("media.video_streams", len(info.Video)),
		attribute.Int("media.audio_streams", len(info.Audio)),
		attribute.Int("media.subtitle_streams", len(info.Subtitle)),
	)
	return info, nil
}

// finish is the encoder exit callback. Success and failure both end in Done.
func (s *Service) finish(log *slog.Logger, id JobID, started time.Time, exitErr error) {
	s.repo.MarkDone(id, exitErr)
	elapsed := time.Since(started)
	s.metrics.ObserveJobCompleted(exitErr == nil, elapsed)

	if exitErr != nil {
		log.Warn("job done, encoder failed",
			slog.String("error", exitErr.Error()),
			slog.Int("elapsed_ms", int(elapsed.Milliseconds())))
		return
	}
	log.Info("job done", slog.Int("elapsed_ms", int(elapsed.Milliseconds())))
}

func (s *Service) failStart(log *slog.Logger, reason string, err error) {
	s.metrics.IncStartFailures(reason)
	log.Error("job start failed", slog.String("stage", reason), slog.String("error", err.Error()))
}

// validate rejects ids that cannot be used as an output file prefix.
func validate(id JobID, path string) error {
	raw := string(id)
	switch {
	case strings.TrimSpace(raw) == "":
		return fmt.Errorf("%w: empty job id", ErrInvalidRequest)
	case raw == "." || raw == "..":
		return fmt.Errorf("%w: job id %q", ErrInvalidRequest, raw)
	case strings.ContainsAny(raw, `/\`) || strings.ContainsRune(raw, 0) || filepath.Base(raw) != raw:
		return fmt.Errorf("%w: job id %q must not contain path separators", ErrInvalidRequest, raw)
	case strings.TrimSpace(path) == "":
		return fmt.Errorf("%w: empty input path", ErrInvalidRequest)
	}
	return nil
}
