// Package notify is a best-effort Windows desktop notification for the two
// events spec §4.G flags as operator-attention-worthy: a forced lock
// takeover and a terminal consensus decision. Adapted from teacher's
// internal/notifications/toast.go — same go-toast/toast wrapper, same
// runtime.GOOS guard, same no-op-off-Windows behavior.
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

const defaultAppID = "corectl"

// Notifier pushes Windows toast notifications. Calls are no-ops (return an
// error the caller is expected to log and ignore) on every other platform,
// exactly like upstream.
type Notifier struct {
	appID        string
	dashboardURL string
}

// New constructs a Notifier. dashboardURL is the link a toast's action
// button opens; pass "" to fall back to http://localhost:8080.
func New(appID, dashboardURL string) *Notifier {
	if appID == "" {
		appID = defaultAppID
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &Notifier{appID: appID, dashboardURL: dashboardURL}
}

// IsSupported reports whether toast notifications can be pushed on this
// platform.
func (n *Notifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}

// Show pushes a toast with the default notification sound.
func (n *Notifier) Show(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("notify: toast notifications only supported on Windows")
	}
	return toast.Notification{
		AppID:   n.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: n.dashboardURL},
		},
	}.Push()
}

// ShowUrgent pushes a toast with the instant-message sound, for events that
// need immediate operator attention.
func (n *Notifier) ShowUrgent(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("notify: toast notifications only supported on Windows")
	}
	return toast.Notification{
		AppID:   n.appID,
		Title:   title,
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "View Now", Arguments: n.dashboardURL},
		},
	}.Push()
}
