package notify

import (
	"fmt"
	"time"
)

// Messages renders the notifications for each outcome. Hostname
// identifies the node the reconciler runs on.
type Messages struct {
	Hostname string
	Now      func() time.Time
}

func (m Messages) stamp() string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return now().UTC().Format(time.RFC1123)
}

func (m Messages) Updated(service, from, to string) Notification {
	return Notification{
		Title:    fmt.Sprintf("[Shepherd] Service %s updated on %s", service, m.Hostname),
		Body:     fmt.Sprintf("%s Service %s was updated from %s to %s", m.stamp(), service, from, to),
		Severity: Success,
	}
}

func (m Messages) Failed(service, image string) Notification {
	return Notification{
		Title:    fmt.Sprintf("[Shepherd] Service %s update failed on %s", service, m.Hostname),
		Body:     fmt.Sprintf("%s Service %s failed to update to %s", m.stamp(), service, image),
		Severity: Failure,
	}
}

func (m Messages) Unavailable(service, image string) Notification {
	return Notification{
		Title:    fmt.Sprintf("[Shepherd] Error updating service %s on %s", service, m.Hostname),
		Body:     fmt.Sprintf("%s Service %s was not updated: image %s does not exist or is not available", m.stamp(), service, image),
		Severity: Failure,
	}
}
