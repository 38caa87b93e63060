// Package textutil normalizes recording titles and transcript text before it
// reaches the vault: Unicode normalization, filename-safe titles, and
// whitespace cleanup.
package textutil
