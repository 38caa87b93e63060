// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The note writer uses it to read the converted recording's duration for the
// note frontmatter. Command execution goes through a Runner so callers can
// substitute canned output in tests.
package ffprobe
