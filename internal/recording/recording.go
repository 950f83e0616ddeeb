// Package recording keeps every synthesized segment of a meeting on disk and
// stitches them into one file when the meeting is finalized.
package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/antoniostano/huddle/internal/audio"
	"github.com/antoniostano/huddle/internal/voice"
)

var ErrNoRecording = errors.New("recording not available")

type Store struct {
	dir     string
	baseURL string
	log     zerolog.Logger

	mu  sync.Mutex
	seq map[string]int
}

func NewStore(dir, baseURL string, log zerolog.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("recording dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "recording").Logger(),
		seq:     make(map[string]int),
	}, nil
}

// URL is the authenticated API path of a meeting's stitched recording,
// prefixed with the configured public origin.
func (s *Store) URL(meetingID string) string {
	return s.baseURL + "/v1/meetings/" + meetingID + "/recording"
}

// Path returns the stitched recording file of a meeting. Segments are never
// returned. ErrNoRecording means nothing was stitched yet.
func (s *Store) Path(meetingID string) (string, error) {
	if !validID(meetingID) {
		return "", ErrNoRecording
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("list recordings: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == meetingID {
			return filepath.Join(s.dir, name), nil
		}
	}
	return "", ErrNoRecording
}

// SaveSegment appends one clip to the meeting's segment list.
func (s *Store) SaveSegment(_ context.Context, meetingID string, clip voice.Audio) error {
	if !validID(meetingID) || len(clip.Data) == 0 {
		return nil
	}
	segDir := filepath.Join(s.dir, "segments", meetingID)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}

	s.mu.Lock()
	if _, ok := s.seq[meetingID]; !ok {
		s.seq[meetingID] = lastSegment(segDir)
	}
	s.seq[meetingID]++
	n := s.seq[meetingID]
	s.mu.Unlock()

	format := normalizeFormat(clip.Format)
	name := fmt.Sprintf("%06d-%s.%s", n, uuid.NewString()[:8], format)
	data := clip.Data
	if format == "pcm" && clip.SampleRate > 0 && clip.SampleRate != voice.PCMSampleRate {
		s.log.Warn().Int("sample_rate", clip.SampleRate).Str("meeting_id", meetingID).Msg("pcm segment at unexpected sample rate")
	}
	if err := os.WriteFile(filepath.Join(segDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	return nil
}

// lastSegment is the highest sequence number already on disk, so a restarted
// process keeps appending after the segments an earlier one wrote.
func lastSegment(segDir string) int {
	entries, err := os.ReadDir(segDir)
	if err != nil {
		return 0
	}
	last := 0
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "-")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(prefix); err == nil && n > last {
			last = n
		}
	}
	return last
}

// Stitch concatenates the meeting's segments and returns the URL of
// the result. Raw PCM is wrapped in a WAV container. Segments whose format
// differs from the first one are skipped. A meeting without segments has no
// recording and yields an empty URL.
func (s *Store) Stitch(ctx context.Context, meetingID string) (string, error) {
	if !validID(meetingID) {
		return "", fmt.Errorf("invalid meeting id %q", meetingID)
	}
	segDir := filepath.Join(s.dir, "segments", meetingID)
	dirEntries, err := os.ReadDir(segDir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("list segments: %w", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)

	format := strings.TrimPrefix(filepath.Ext(names[0]), ".")
	var joined []byte
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if strings.TrimPrefix(filepath.Ext(name), ".") != format {
			s.log.Warn().Str("meeting_id", meetingID).Str("segment", name).Msg("skipping segment with mismatched format")
			continue
		}
		data, err := os.ReadFile(filepath.Join(segDir, name))
		if err != nil {
			return "", fmt.Errorf("read segment %s: %w", name, err)
		}
		joined = append(joined, data...)
	}

	ext := format
	if format == "pcm" {
		joined, err = audio.EncodeWAV(joined, voice.PCMSampleRate)
		if err != nil {
			return "", fmt.Errorf("encode wav: %w", err)
		}
		ext = "wav"
	}

	file := meetingID + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, file), joined, 0o644); err != nil {
		return "", fmt.Errorf("write recording: %w", err)
	}
	s.log.Info().Str("meeting_id", meetingID).Int("segments", len(names)).Int("bytes", len(joined)).Msg("recording stitched")
	return s.URL(meetingID), nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "mp3"
	}
	return format
}

// validID keeps meeting ids from escaping the recording dir.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
