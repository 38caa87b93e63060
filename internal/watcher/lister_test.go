package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubRunner struct {
	output []byte
	err    error
	args   []string
}

func (s *stubRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	s.args = append([]string{name}, args...)
	return s.output, s.err
}

func TestLsblkListerFiltersRemovableMounts(t *testing.T) {
	runner := &stubRunner{output: []byte(
		`PATH="/dev/sda" UUID="" LABEL="" RM="0" HOTPLUG="0" MOUNTPOINT="" TYPE="disk"` + "\n" +
			`PATH="/dev/sda1" UUID="aaaa-1111" LABEL="root" RM="0" HOTPLUG="0" MOUNTPOINT="/" TYPE="part"` + "\n" +
			`PATH="/dev/sdb1" UUID="1234-ABCD" LABEL="PENDANT" RM="1" HOTPLUG="1" MOUNTPOINT="/media/user/PENDANT" TYPE="part"` + "\n" +
			`PATH="/dev/sdc1" UUID="" LABEL="My Recorder" RM="0" HOTPLUG="1" MOUNTPOINT="/run/media/user/My\x20Recorder" TYPE="part"` + "\n" +
			`PATH="/dev/sdd1" UUID="5555" LABEL="SPARE" RM="1" HOTPLUG="1" MOUNTPOINT="" TYPE="part"` + "\n" +
			`PATH="/dev/sr0" UUID="" LABEL="DISC" RM="1" HOTPLUG="0" MOUNTPOINT="/media/cdrom" TYPE="rom"` + "\n",
	)}

	volumes, err := LsblkLister{Runner: runner}.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runner.args) == 0 || runner.args[0] != "lsblk" || runner.args[len(runner.args)-1] != lsblkColumns {
		t.Fatalf("unexpected lsblk invocation: %v", runner.args)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %d: %+v", len(volumes), volumes)
	}
	if volumes[0].DeviceID != "1234-ABCD" || volumes[0].MountPoint != "/media/user/PENDANT" || volumes[0].Device != "/dev/sdb1" {
		t.Fatalf("unexpected first volume: %+v", volumes[0])
	}
	if volumes[1].MountPoint != "/run/media/user/My Recorder" {
		t.Fatalf("expected unescaped mount point, got %q", volumes[1].MountPoint)
	}
	if volumes[1].DeviceID != "My Recorder:/dev/sdc1" {
		t.Fatalf("expected label fallback device id, got %q", volumes[1].DeviceID)
	}
}

func TestLsblkListerPropagatesErrors(t *testing.T) {
	runner := &stubRunner{err: errors.New("exec: \"lsblk\": executable file not found")}
	if _, err := (LsblkLister{Runner: runner}).List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestMountInfoListerMatchesRoots(t *testing.T) {
	data := "22 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw\n" +
		"40 22 0:36 / /proc rw shared:12 - proc proc rw\n" +
		"91 22 8:17 / /media/user/PENDANT rw,nosuid shared:50 - vfat /dev/sdb1 rw,uid=1000\n" +
		"92 22 8:33 / /mnt/My\\040Recorder rw shared:51 - exfat /dev/sdc1 rw\n" +
		"93 22 8:49 / /mnt rw shared:52 - ext4 /dev/sdd1 rw\n" +
		"94 22 0:50 / /media/user/share rw shared:53 - nfs server:/export rw\n"
	path := filepath.Join(t.TempDir(), "mountinfo")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	volumes, err := MountInfoLister{Path: path, Roots: []string{"/media", "/run/media", "/mnt"}}.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %+v", volumes)
	}
	if volumes[0].MountPoint != "/media/user/PENDANT" || volumes[0].DeviceID != "PENDANT:/dev/sdb1" {
		t.Fatalf("unexpected first volume: %+v", volumes[0])
	}
	if volumes[1].MountPoint != "/mnt/My Recorder" || volumes[1].Label != "My Recorder" {
		t.Fatalf("unexpected second volume: %+v", volumes[1])
	}
}

func TestFallbackListerUsesSecondaryOnFailure(t *testing.T) {
	primary := &fakeLister{err: errors.New("lsblk missing")}
	secondary := &fakeLister{}
	secondary.set(Volume{MountPoint: "/media/a", DeviceID: "A"})

	volumes, err := FallbackLister{Primary: primary, Secondary: secondary}.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(volumes) != 1 || volumes[0].DeviceID != "A" {
		t.Fatalf("expected fallback volumes, got %+v", volumes)
	}

	secondary.err = errors.New("no mountinfo")
	if _, err := (FallbackLister{Primary: primary, Secondary: secondary}).List(context.Background()); err == nil {
		t.Fatal("expected joined error when both listers fail")
	}
}

func TestDeviceIDFor(t *testing.T) {
	tests := []struct {
		uuid, label, device, want string
	}{
		{"1234-ABCD", "PENDANT", "/dev/sdb1", "1234-ABCD"},
		{"", "PENDANT", "/dev/sdb1", "PENDANT:/dev/sdb1"},
		{"", "", "/dev/sdb1", "/dev/sdb1"},
		{" ", "PENDANT", "", "PENDANT"},
	}
	for _, tc := range tests {
		if got := DeviceIDFor(tc.uuid, tc.label, tc.device); got != tc.want {
			t.Fatalf("DeviceIDFor(%q,%q,%q) = %q, want %q", tc.uuid, tc.label, tc.device, got, tc.want)
		}
	}
}
