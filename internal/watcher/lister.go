package watcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"pendant/internal/logging"
)

// VolumeLister enumerates the removable volumes that are mounted right now.
type VolumeLister interface {
	List(ctx context.Context) ([]Volume, error)
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output implements CommandRunner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.Output()
}

var lsblkColumns = "PATH,UUID,LABEL,RM,HOTPLUG,MOUNTPOINT,TYPE"

// LsblkLister lists removable or hotplug partitions that have a mount point.
type LsblkLister struct {
	Runner  CommandRunner
	Timeout time.Duration
}

// List implements VolumeLister.
func (l LsblkLister) List(ctx context.Context) ([]Volume, error) {
	runner := l.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	listCtx := ctx
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	output, err := runner.Output(listCtx, "lsblk", "-P", "-o", lsblkColumns)
	if err != nil {
		return nil, fmt.Errorf("lsblk: %w", err)
	}
	return parseLsblk(output), nil
}

func parseLsblk(output []byte) []Volume {
	var volumes []Volume
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row := parsePairs(line)
		mount := row["MOUNTPOINT"]
		if mount == "" || !strings.HasPrefix(mount, "/") {
			continue
		}
		if row["RM"] != "1" && row["HOTPLUG"] != "1" {
			continue
		}
		switch row["TYPE"] {
		case "part", "disk", "":
		default:
			continue
		}
		volumes = append(volumes, Volume{
			MountPoint: mount,
			DeviceID:   DeviceIDFor(row["UUID"], row["LABEL"], row["PATH"]),
			Label:      row["LABEL"],
			Device:     row["PATH"],
			State:      StateAttached,
		})
	}
	return volumes
}

// parsePairs decodes one lsblk -P line of KEY="value" pairs. Values may
// contain spaces and lsblk's \xHH escapes.
func parsePairs(line string) map[string]string {
	result := make(map[string]string)
	for len(line) > 0 {
		line = strings.TrimLeft(line, " \t")
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		key := line[:eq]
		rest := line[eq+1:]
		if !strings.HasPrefix(rest, `"`) {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			result[key] = rest[:end]
			line = rest[end:]
			continue
		}
		rest = rest[1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			end = len(rest)
		}
		result[key] = unescapeHex(rest[:end])
		if end < len(rest) {
			end++
		}
		line = rest[end:]
	}
	return result
}

func unescapeHex(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if n, err := strconv.ParseUint(value[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// MountInfoLister reads /proc/self/mountinfo and keeps block-device mounts
// located below one of Roots.
type MountInfoLister struct {
	Path  string
	Roots []string
}

// List implements VolumeLister.
func (l MountInfoLister) List(context.Context) ([]Volume, error) {
	path := l.Path
	if path == "" {
		path = "/proc/self/mountinfo"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}
	return parseMountInfo(data, l.Roots), nil
}

func parseMountInfo(data []byte, roots []string) []Volume {
	var volumes []Volume
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		sep := strings.Index(line, " - ")
		if sep < 0 {
			continue
		}
		pre := strings.Fields(line[:sep])
		post := strings.Fields(line[sep+3:])
		if len(pre) < 5 || len(post) < 2 {
			continue
		}
		mount := unescapeOctal(pre[4])
		source := unescapeOctal(post[1])
		if !strings.HasPrefix(source, "/dev/") || !underRoot(mount, roots) {
			continue
		}
		label := filepath.Base(mount)
		volumes = append(volumes, Volume{
			MountPoint: mount,
			DeviceID:   DeviceIDFor("", label, source),
			Label:      label,
			Device:     source,
			State:      StateAttached,
		})
	}
	return volumes
}

func underRoot(mount string, roots []string) bool {
	clean := filepath.Clean(mount)
	for _, root := range roots {
		root = filepath.Clean(root)
		if clean != root && strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func unescapeOctal(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) {
			if n, err := strconv.ParseUint(value[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// FallbackLister asks Primary first and Secondary when Primary fails.
type FallbackLister struct {
	Primary   VolumeLister
	Secondary VolumeLister
	Logger    *slog.Logger
}

// List implements VolumeLister.
func (l FallbackLister) List(ctx context.Context) ([]Volume, error) {
	if l.Primary == nil {
		return l.listSecondary(ctx)
	}
	volumes, err := l.Primary.List(ctx)
	if err == nil {
		return volumes, nil
	}
	if ctx.Err() != nil || l.Secondary == nil {
		return nil, err
	}
	if l.Logger != nil {
		l.Logger.Debug("primary volume listing failed; using fallback", logging.Error(err))
	}
	fallback, ferr := l.Secondary.List(ctx)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, nil
}

func (l FallbackLister) listSecondary(ctx context.Context) ([]Volume, error) {
	if l.Secondary == nil {
		return nil, errors.New("no volume lister configured")
	}
	return l.Secondary.List(ctx)
}

func sortVolumes(volumes []Volume) {
	sort.Slice(volumes, func(i, j int) bool {
		if volumes[i].MountPoint == volumes[j].MountPoint {
			return volumes[i].DeviceID < volumes[j].DeviceID
		}
		return volumes[i].MountPoint < volumes[j].MountPoint
	})
}
