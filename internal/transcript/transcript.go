// Package transcript holds the provider-neutral transcription result shared by
// the transcription services, the pipeline, and the note writer.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder is the body text used when every transcription attempt failed.
const Placeholder = "No transcription available."

// Segment is one timestamped span of speech.
type Segment struct {
	Start time.Duration
	Text  string
}

// Transcript is the result of transcribing one recording.
type Transcript struct {
	Text     string
	Language string
	Segments []Segment
	// Placeholder marks a transcript substituted after the retry budget ran out.
	Placeholder bool
}

// Unavailable returns the placeholder transcript.
func Unavailable() Transcript {
	return Transcript{Text: Placeholder, Placeholder: true}
}

// Empty reports whether the transcript carries no spoken text.
func (t Transcript) Empty() bool {
	if strings.TrimSpace(t.Text) != "" {
		return false
	}
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) != "" {
			return false
		}
	}
	return true
}

// Lines returns one display line per segment. A transcript without segments
// yields a single line starting at 00:00.
func (t Transcript) Lines() []Segment {
	if len(t.Segments) > 0 {
		out := make([]Segment, 0, len(t.Segments))
		for _, seg := range t.Segments {
			if text := strings.TrimSpace(seg.Text); text != "" {
				out = append(out, Segment{Start: seg.Start, Text: text})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	text := strings.TrimSpace(t.Text)
	if text == "" {
		text = Placeholder
	}
	return []Segment{{Text: text}}
}

// JoinText concatenates segment text with single spaces.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders an offset as MM:SS, rolling into H:MM:SS past an hour.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Seconds converts a float second offset from provider JSON into a duration.
func Seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
