package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrWrite is returned when a playlist cannot be written. Files written
// before the failure are left in place.
var ErrWrite = errors.New("manifest write failed")

// Files lists the playlists written for one job. SubtitlePlaylist is empty
// when the job has no subtitles.
type Files struct {
	MediaPlaylist    string
	SubtitlePlaylist string
	MasterPlaylist   string
	Segments         int
}

// Writer writes playlists into a single output directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// MediaPlaylistName returns the media playlist file name for id.
func MediaPlaylistName(id string) string { return id + "_manifest.m3u8" }

// SubtitlePlaylistName returns the subtitle playlist file name for id.
func SubtitlePlaylistName(id string) string { return id + "_manifest_subs.m3u8" }

// MasterPlaylistName returns the master playlist file name for id.
func MasterPlaylistName(id string) string { return id + "_playlist.m3u8" }

// Write plans segments for duration and writes the media, subtitle (only if
// hasSubtitles) and master playlists for id.
func (w *Writer) Write(id string, duration, target float64, hasSubtitles bool) (Files, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("%w: create %s: %w", ErrWrite, w.dir, err)
	}

	plan := PlanSegments(id, duration, target)
	files := Files{
		MediaPlaylist:  filepath.Join(w.dir, MediaPlaylistName(id)),
		MasterPlaylist: filepath.Join(w.dir, MasterPlaylistName(id)),
		Segments:       len(plan),
	}

	if err := writeFile(files.MediaPlaylist, RenderMediaPlaylist(plan, target, InitSegmentName(id))); err != nil {
		return Files{}, err
	}

	if hasSubtitles {
		files.SubtitlePlaylist = filepath.Join(w.dir, SubtitlePlaylistName(id))
		if err := writeFile(files.SubtitlePlaylist, RenderSubtitlePlaylist(plan, target)); err != nil {
			return Files{}, err
		}
	}

	master := RenderMasterPlaylist(MediaPlaylistName(id), SubtitlePlaylistName(id), hasSubtitles)
	if err := writeFile(files.MasterPlaylist, master); err != nil {
		return Files{}, err
	}

	return files, nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return nil
}
