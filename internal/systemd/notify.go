package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	log "github.com/sirupsen/logrus"
)

// Notifier reports service state to systemd. Outside systemd every call is a no-op.
type Notifier struct {
	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

// NewNotifier creates a notifier backed by sd_notify
func NewNotifier() *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

// Ready tells systemd start-up is complete
func (n *Notifier) Ready() error {
	return n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun
func (n *Notifier) Stopping() error {
	return n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status
func (n *Notifier) Status(format string, args ...interface{}) error {
	return n.send("STATUS=" + fmt.Sprintf(format, args...))
}

func (n *Notifier) send(state string) error {
	sent, err := n.notify(false, state)
	if err != nil {
		return fmt.Errorf("failed to notify systemd (%s): %w", state, err)
	}
	if sent {
		log.WithField("state", state).Debug("Notified systemd")
	}
	return nil
}

// Watchdog sends keep-alives at half the unit's WatchdogSec until ctx is done.
// It returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) {
	interval, err := n.watchdog(false)
	if err != nil {
		log.WithError(err).Warn("Failed to read systemd watchdog settings")
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	log.WithField("interval", interval).Info("Systemd watchdog enabled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.send(daemon.SdNotifyWatchdog); err != nil {
				log.WithError(err).Warn("Watchdog keep-alive failed")
			}
		}
	}
}
