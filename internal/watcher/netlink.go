package watcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"pendant/internal/logging"
)

// ueventMonitor listens for block-device uevents and pokes the watcher. It is
// only a trigger: the volume set always comes from a VolumeLister.
type ueventMonitor struct {
	logger *slog.Logger
	notify func(action, device string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newUeventMonitor(logger *slog.Logger, notify func(action, device string)) *ueventMonitor {
	return &ueventMonitor{
		logger: logger,
		notify: notify,
	}
}

// Start connects to the kernel uevent socket. A connect failure is logged and
// reported as false; the watcher then relies on polling.
func (m *ueventMonitor) Start(ctx context.Context) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return true
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable; volume detection falls back to polling",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "recorder attach is noticed on the next poll"),
		)
		return false
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Debug("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return true
}

// Stop closes the socket. It is safe to call more than once.
func (m *ueventMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *ueventMonitor) stopLocked() {
	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the monitor is connected.
func (m *ueventMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ueventMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, blockMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			device := deviceName(uevent)
			m.logger.Debug("block uevent",
				logging.String("action", string(uevent.Action)),
				logging.String("device_path", device),
			)
			if m.notify != nil {
				m.notify(string(uevent.Action), device)
			}
		case err := <-errs:
			m.logger.Warn("netlink monitor failed; volume detection falls back to polling",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "recorder attach is noticed on the next poll"),
			)
			close(monitorQuit)
			m.mu.Lock()
			if m.conn == conn {
				m.quit = nil
				_ = m.conn.Close()
				m.conn = nil
				m.running = false
			}
			m.mu.Unlock()
			return
		}
	}
}

// blockMatcher matches SUBSYSTEM=block with ACTION add, remove, or change.
func blockMatcher() netlink.Matcher {
	action := "add|remove|change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
		},
	})
	return rules
}

func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
