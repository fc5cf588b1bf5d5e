package application

import (
	"time"

	"github.com/alem-hub/palms-core/pkg/timeutil"
)

// ResponseDays is how many days a professor has to respond to an application.
const ResponseDays = 3

// Urgency is a presentational bucket for sent applications.
type Urgency string

const (
	UrgencyHandled Urgency = "handled"
	UrgencyPending Urgency = "pending"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyMissed  Urgency = "missed"
)

// UrgencyAt classifies the application on the day of now.
func (a *Application) UrgencyAt(now time.Time) Urgency {
	if a.State.IsHandled() {
		return UrgencyHandled
	}
	if a.SentDate.IsZero() {
		return UrgencyPending
	}
	// Calendar days in the zone the application was sent in.
	switch waited := timeutil.DaysBetween(a.SentDate, now); {
	case waited < ResponseDays:
		return UrgencyPending
	case waited == ResponseDays:
		return UrgencyUrgent
	default:
		return UrgencyMissed
	}
}

// DaysWaiting returns how many calendar days the application has been
// waiting for an answer; zero when it was never sent.
func (a *Application) DaysWaiting(now time.Time) int {
	if a.SentDate.IsZero() {
		return 0
	}
	return max(timeutil.DaysBetween(a.SentDate, now), 0)
}
