// Package watcher detects recorder volumes as they are mounted and removed.
//
// A Watcher keeps the set of removable volumes that are currently mounted and
// emits Attached and Detached events on a channel whenever that set changes.
// Reconciliation is driven by kernel block-device uevents received over
// netlink, with a periodic poll that keeps detection working when netlink is
// unavailable. Volumes are enumerated through a VolumeLister: lsblk by
// default, /proc/self/mountinfo as a fallback.
package watcher
