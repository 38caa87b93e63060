package logging

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"file",
	"volume",
	"mount_point",
	"outcome",
	"attempt",
	"note_path",
	"title",
	"error",
	FieldErrorKind,
	FieldErrorHint,
	FieldImpact,
	"candidates",
	"unstable",
	"skipped",
	"size_bytes",
	"audio_duration",
	"stage_duration",
	"provider",
	"reason",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	consider := func(idx int) {
		attr := attrs[idx]
		used[idx] = true
		if skipInfoKey(attr.key) {
			return
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		val := formatValueForKey(attr.key, attr.value)
		if !includeDebug && len(val) > 120 && attr.key != "error" {
			hidden++
			return
		}
		if limit > 0 && len(result) >= limit {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: val})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				consider(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			consider(idx)
		}
	}
	return result, hidden
}

// formatValueForKey renders sizes and durations for humans based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	switch {
	case isByteSizeKey(key) && v.Kind() == slog.KindInt64 && v.Int64() >= 0:
		return humanize.IBytes(uint64(v.Int64()))
	case isByteSizeKey(key) && v.Kind() == slog.KindUint64:
		return humanize.IBytes(v.Uint64())
	case v.Kind() == slog.KindDuration:
		return formatDurationHuman(v.Duration())
	case v.Kind() == slog.KindTime:
		return humanize.Time(v.Time())
	case v.Kind() == slog.KindBool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	value := formatValue(v)
	if key == "error" && len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

func isByteSizeKey(key string) bool {
	return strings.HasSuffix(key, "_bytes") || key == "size"
}

func formatDurationHuman(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldIdentity, FieldStage, FieldDevice, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "device_node", "fs_uuid", "label", "mtime", "segments", "args", "output":
		return true
	}
	return strings.HasSuffix(key, "_path") && key != "note_path" || strings.HasSuffix(key, "_dir")
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case FieldErrorKind:
		return "Kind"
	case "note_path":
		return "Note"
	case "audio_duration":
		return "Length"
	case "stage_duration":
		return "Took"
	case "size_bytes":
		return "Size"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// infoSummaryKey groups repeated info lines so unchanged fields are not reprinted.
func infoSummaryKey(component, identity string) string {
	if identity = strings.TrimSpace(identity); identity != "" {
		return identity
	}
	return component
}
