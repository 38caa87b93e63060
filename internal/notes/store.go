package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"pendant/internal/fileutil"
	"pendant/internal/logging"
	"pendant/internal/services"
	"pendant/internal/textutil"
	"pendant/internal/transcript"
)

// Note is one recording ready to be written into the vault.
type Note struct {
	Title       string
	Body        string
	Segments    []transcript.Segment
	AudioPath   string
	RecordedAt  time.Time
	Duration    time.Duration
	Placeholder bool

	// Identity is the ledger identity of the source recording. It is written
	// into the frontmatter and keeps same-named recordings apart.
	Identity string
}

// NoteRef locates a written note.
type NoteRef struct {
	Path      string
	MediaPath string
	// Replaced is set when a note for the same recording already existed.
	Replaced bool
}

// identityField is the frontmatter key holding Note.Identity.
const identityField = "Recording-ID"

// DurationProber reports the playing time of an audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Store writes notes into a vault directory.
type Store struct {
	vaultDir    string
	mediaFolder string
	prober      DurationProber
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithProber measures audio duration when a note arrives without one.
func WithProber(p DurationProber) Option {
	return func(s *Store) { s.prober = p }
}

// WithClock overrides the clock used for the Created field.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore builds a Store rooted at vaultDir. mediaFolder is relative to the vault.
func NewStore(vaultDir, mediaFolder string, opts ...Option) *Store {
	s := &Store{
		vaultDir:    vaultDir,
		mediaFolder: strings.Trim(mediaFolder, "/"),
		now:         time.Now,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "notes")
	return s
}

// NotePath returns where the note for title is written when no other
// recording already owns that name.
func (s *Store) NotePath(title string) string {
	return s.pathFor(fileTitle(title))
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.vaultDir, name+".md")
}

// noteName picks the file name for a recording. A note written earlier for the
// same identity is replaced in place; a note owned by another recording (or by
// nobody known) keeps its name and the new one gets an identity suffix.
func (s *Store) noteName(title, identity string) (string, bool) {
	if !fileutil.Exists(s.pathFor(title)) {
		return title, false
	}
	if identity == "" || noteIdentity(s.pathFor(title)) == identity {
		return title, true
	}
	name := title
	for _, n := range []int{8, 16, len(identity)} {
		name = title + "_" + identity[:min(n, len(identity))]
		path := s.pathFor(name)
		if !fileutil.Exists(path) {
			return name, false
		}
		if noteIdentity(path) == identity {
			return name, true
		}
	}
	return name, true
}

// noteIdentity reads the Recording-ID frontmatter field of an existing note.
func noteIdentity(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	front, ok := strings.CutPrefix(string(data), "---\n")
	if !ok {
		return ""
	}
	front, _, _ = strings.Cut(front, "\n---\n")
	for line := range strings.Lines(front) {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), identityField+":"); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// CreateNote copies the audio into the vault media folder and writes the note.
// A missing vault is services.ErrUnreachable; failed writes are
// services.ErrWriteFailed or services.ErrStorageExhausted. All are transient.
func (s *Store) CreateNote(ctx context.Context, n Note) (NoteRef, error) {
	title := fileTitle(n.Title)
	if title == "" {
		return NoteRef{}, services.Wrap(services.ErrValidation, "note", "title", "note title is empty", nil)
	}
	info, err := os.Stat(s.vaultDir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", s.vaultDir)
		}
		return NoteRef{}, services.Wrap(services.ErrUnreachable, "note", "stat vault", s.vaultDir, err)
	}

	name, replaced := s.noteName(title, n.Identity)
	ref := NoteRef{Path: s.pathFor(name), Replaced: replaced}

	var mediaName string
	if n.AudioPath != "" {
		mediaDir := filepath.Join(s.vaultDir, s.mediaFolder)
		if err := os.MkdirAll(mediaDir, 0o755); err != nil {
			return NoteRef{}, classifyWrite("create media folder", err)
		}
		mediaName = name + ".mp3"
		ref.MediaPath = filepath.Join(mediaDir, mediaName)
		if err := fileutil.CopyFileVerified(n.AudioPath, ref.MediaPath); err != nil {
			return NoteRef{}, classifyWrite("copy audio", err)
		}
	}

	duration := n.Duration
	if duration <= 0 && s.prober != nil && ref.MediaPath != "" {
		if d, err := s.prober.Duration(ctx, ref.MediaPath); err == nil {
			duration = d
		} else {
			logging.WarnWithContext(s.logger, "audio duration unknown", "note_duration_unknown",
				logging.String("media_path", ref.MediaPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ffprobe is installed"),
				logging.String(logging.FieldImpact, "note is written without a Duration field"),
			)
		}
	}

	content := Render(n, title, mediaName, s.now(), duration)
	if err := fileutil.WriteFileAtomic(ref.Path, []byte(content), 0o644); err != nil {
		return NoteRef{}, classifyWrite("write note", err)
	}
	s.logger.Info("note written",
		logging.String("note_path", ref.Path),
		logging.String("title", title),
		logging.String(logging.FieldIdentity, n.Identity),
		logging.Bool("replaced", ref.Replaced),
		logging.Bool("placeholder", n.Placeholder),
		logging.String(logging.FieldEventType, "note_created"),
	)
	return ref, nil
}

// Render produces the note markdown.
func Render(n Note, title, mediaName string, created time.Time, duration time.Duration) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Created: [[%s]]\n", created.Format("2006-01-02 15:04:05"))
	if n.Identity != "" {
		fmt.Fprintf(&b, "%s: %s\n", identityField, n.Identity)
	}
	if !n.RecordedAt.IsZero() {
		fmt.Fprintf(&b, "Recorded: %s\n", n.RecordedAt.Format("2006-01-02 15:04:05"))
	}
	if duration > 0 {
		total := int(duration.Round(time.Second) / time.Second)
		fmt.Fprintf(&b, "Duration: %dm %ds\n", total/60, total%60)
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "# %s\n\n", title)
	if mediaName != "" {
		fmt.Fprintf(&b, "![[%s]]\n\n", mediaName)
	}
	b.WriteString("## Transcription\n")

	if n.Placeholder {
		b.WriteString(transcript.Placeholder)
		b.WriteByte('\n')
		return b.String()
	}
	t := transcript.Transcript{Text: n.Body, Segments: n.Segments}
	for _, seg := range t.Lines() {
		fmt.Fprintf(&b, "- **%s**: %s\n", transcript.FormatTimestamp(seg.Start), seg.Text)
	}
	return b.String()
}

func fileTitle(title string) string {
	return textutil.SanitizeFileName(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

func classifyWrite(operation string, err error) error {
	if errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT) {
		return services.Wrap(services.ErrStorageExhausted, "note", operation, "disk full", err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrUnreachable, "note", operation, "", err)
	}
	return services.Wrap(services.ErrWriteFailed, "note", operation, "", err)
}
