package notify

import (
	"context"
	"log"
	"os/exec"
	"time"

	"portalmail/internal/config"
)

// Notifier emits a fire-and-forget desktop notification.
type Notifier interface {
	Notify(title, message, icon string)
}

type LogNotifier struct{}

func (LogNotifier) Notify(title, message, icon string) {
	_ = icon
	log.Printf("notify: %s: %s", title, message)
}

// CommandNotifier shells out to a user-supplied notifier binary, for
// example notify-send on Linux desktops. The command receives the
// title, message and icon path as arguments.
type CommandNotifier struct {
	command string
	timeout time.Duration
}

func New(cfg config.Config) Notifier {
	switch cfg.NotifyMode {
	case "command":
		return CommandNotifier{command: cfg.NotifyCommand, timeout: 10 * time.Second}
	case "off":
		return nil
	default:
		return LogNotifier{}
	}
}

func (n CommandNotifier) Notify(title, message, icon string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, n.command, title, message, icon)
		if err := cmd.Run(); err != nil {
			log.Printf("notify: %s: %v", n.command, err)
		}
	}()
}
