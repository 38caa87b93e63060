package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State reports whether a volume is mounted.
type State string

const (
	StateAttached State = "attached"
	StateDetached State = "detached"
)

// EventType distinguishes attach from detach notifications.
type EventType string

const (
	EventAttached EventType = "attached"
	EventDetached EventType = "detached"
)

// Volume is a mounted removable filesystem.
type Volume struct {
	MountPoint string
	DeviceID   string
	Label      string
	Device     string
	State      State
}

// Event is emitted on the Watcher channel.
type Event struct {
	Type   EventType
	Volume Volume
}

// DisplayName returns the label, falling back to the mount point base name.
func (v Volume) DisplayName() string {
	if label := strings.TrimSpace(v.Label); label != "" {
		return label
	}
	return filepath.Base(v.MountPoint)
}

func (v Volume) key() string {
	return v.DeviceID + "\x00" + v.MountPoint
}

// DeviceIDFor derives a stable identifier for a filesystem. The UUID wins;
// without one the label and block device path are combined.
func DeviceIDFor(uuid, label, device string) string {
	uuid = strings.TrimSpace(uuid)
	if uuid != "" {
		return uuid
	}
	label = strings.TrimSpace(label)
	device = strings.TrimSpace(device)
	switch {
	case label != "" && device != "":
		return label + ":" + device
	case label != "":
		return label
	default:
		return device
	}
}

// ManualVolume synthesizes an attached volume for an arbitrary directory.
func ManualVolume(dir string) (Volume, error) {
	abs, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		return Volume{}, fmt.Errorf("resolve %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Volume{}, fmt.Errorf("stat %q: %w", abs, err)
	}
	if !info.IsDir() {
		return Volume{}, fmt.Errorf("%q is not a directory", abs)
	}
	return Volume{
		MountPoint: abs,
		DeviceID:   "manual:" + abs,
		Label:      filepath.Base(abs),
		State:      StateAttached,
	}, nil
}
