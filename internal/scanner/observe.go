package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Observation is a point-in-time stat of a file.
type Observation struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Candidate is a recording that held still across the settle interval.
type Candidate struct {
	Path     string
	Name     string
	Size     int64
	ModTime  time.Time
	Identity string
}

// Observation returns the stat the candidate was accepted with.
func (c Candidate) Observation() Observation {
	return Observation{Path: c.Path, Name: c.Name, Size: c.Size, ModTime: c.ModTime}
}

// Observe stats path. Directories and other non-regular files are rejected.
func Observe(path string) (Observation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Observation{}, err
	}
	if !info.Mode().IsRegular() {
		return Observation{}, fmt.Errorf("%s: not a regular file", path)
	}
	return Observation{
		Path:    path,
		Name:    filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Stable reports whether two observations describe the same unchanged file.
func Stable(a, b Observation) bool {
	return a.Size == b.Size && a.ModTime.Equal(b.ModTime)
}

// Identity is the lowercase hex SHA-256 of "name|size|mtime-unix-nanos".
func Identity(name string, size int64, modTime time.Time) string {
	sum := sha256.Sum256([]byte(name + "|" + strconv.FormatInt(size, 10) + "|" + strconv.FormatInt(modTime.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}

// Identity computes the identity of the observed file.
func (o Observation) Identity() string {
	return Identity(o.Name, o.Size, o.ModTime)
}
