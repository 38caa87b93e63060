package notes

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"pendant/internal/textutil"
)

var recorderName = regexp.MustCompile(`(?i)^REC(\d{8})(\d{6})$`)

// TitleFor derives the note title and the recording time from a recorder file
// name. Recorder names like REC20241025043932.WAV become
// Recording_20241025_043932 with the embedded local timestamp; other names
// keep their stem and fall back to modTime.
func TitleFor(name string, modTime time.Time) (string, time.Time) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if m := recorderName.FindStringSubmatch(stem); m != nil {
		if ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.Local); err == nil {
			return "Recording_" + m[1] + "_" + m[2], ts
		}
	}
	title := textutil.SanitizeFileName(strings.ReplaceAll(stem, " ", "_"))
	if title == "" {
		title = "Recording_" + modTime.Format("20060102_150405")
	}
	return title, modTime
}
