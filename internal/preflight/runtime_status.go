package preflight

import (
	"context"
	"fmt"
	"time"

	"pendant/internal/watcher"
)

// FolderFinder locates the recordings folder on a mounted volume.
type FolderFinder interface {
	Folder(mountPoint string) (string, bool, error)
}

// RecorderProbe reports one attached volume and whether it carries a
// recordings folder.
type RecorderProbe struct {
	Volume    watcher.Volume
	Folder    string
	HasFolder bool
}

// Detail renders a display-friendly summary for status output.
func (p RecorderProbe) Detail() string {
	if !p.HasFolder {
		return fmt.Sprintf("%s at %s (no recordings folder)", p.Volume.DisplayName(), p.Volume.MountPoint)
	}
	return fmt.Sprintf("%s at %s (%s)", p.Volume.DisplayName(), p.Volume.MountPoint, p.Folder)
}

// ProbeRecorders lists the removable volumes attached right now.
func ProbeRecorders(ctx context.Context, lister watcher.VolumeLister, finder FolderFinder) ([]RecorderProbe, error) {
	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	volumes, err := lister.List(listCtx)
	if err != nil {
		return nil, err
	}
	probes := make([]RecorderProbe, 0, len(volumes))
	for _, vol := range volumes {
		probe := RecorderProbe{Volume: vol}
		if finder != nil {
			if folder, ok, err := finder.Folder(vol.MountPoint); err == nil && ok {
				probe.Folder = folder
				probe.HasFolder = true
			}
		}
		probes = append(probes, probe)
	}
	return probes, nil
}
