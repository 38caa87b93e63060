// Package scanner finds stable recordings on an attached volume.
//
// A file becomes a candidate only after two observations, separated by the
// settle interval, agree on its size and modification time. Candidates carry
// a content-independent identity derived from name, size, and mtime so the
// same recording is recognized across remounts and mount points.
package scanner
