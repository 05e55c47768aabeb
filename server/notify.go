package server

import (
	"github.com/gen2brain/beeep"

	"github.com/wardenterm/warden/risk"
)

// Notifier raises a desktop notification.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier notifies through the OS notification service.
type DesktopNotifier struct{}

func (DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// notifyRisky tells the user a command was held for review. Delivery
// is best effort.
func (s *Server) notifyRisky(command string, report *risk.Report) {
	if s.Notifier == nil {
		return
	}

	msg := "Command held for review: " + command
	if report != nil && report.RiskReason != "" {
		msg = report.RiskReason
	}
	if err := s.Notifier.Notify("Warden: review before running", msg); err != nil {
		s.Logger.Debug("notification failed", "error", err)
	}
}
