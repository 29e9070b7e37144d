package types

import "time"

type Kind string

const (
	KindDonation     Kind = "donation"
	KindFollow       Kind = "follow"
	KindSubscription Kind = "subscription"
	KindOther        Kind = "other"
)

// Alert is what the dispatcher emits for an event it recognizes.  Message
// is the service's pre-formatted text, passed through verbatim.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Platform  string    `json:"platform,omitempty"`
	EventType string    `json:"eventType"`
	Message   string    `json:"message"`
	EventID   string    `json:"eventID"`
	Source    string    `json:"source"`
	Received  time.Time `json:"received"`
}
