package domain

import "time"

// TimelineEvent описывает аудит-событие жизненного цикла pending-записи.
type TimelineEvent struct {
	PendingID string
	Type      string
	Reason    string
	Occurred  time.Time
}

// Типы аудит-событий pending-записи.
const (
	TimelineEventClassified     = "AttemptClassified"
	TimelineEventClaimed        = "VerificationClaimed"
	TimelineEventVerified       = "AvailabilityVerified"
	TimelineEventResolved       = "PendingResolved"
	TimelineEventNeedsReview    = "NeedsManualReview"
	TimelineEventManualRetry    = "ManualRegistrationRetry"
	TimelineEventManualOverride = "ManualOverride"
)
