// Package notes writes transcribed recordings into an Obsidian vault.
//
// Each recording becomes one markdown note at {vault}/{title}.md with the
// converted audio copied to {vault}/{media folder}/{title}.mp3 and embedded in
// the note. Paths depend only on the recording, so writing the same recording
// twice replaces the earlier note instead of adding a second one.
package notes
