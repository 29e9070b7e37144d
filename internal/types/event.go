package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/tidwall/gjson"
)

// Account tags carried in the "for" field of a notification.
const (
	ForTwitchAccount = "twitch_account"
)

// Event types the dispatcher knows by name.  Anything else under
// twitch_account falls through to KindOther.
const (
	TypeDonation     = "donation"
	TypeFollow       = "follow"
	TypeSubscription = "subscription"
)

var (
	ErrMalformed   = errors.New("malformed event payload")
	ErrMissingType = errors.New("event payload has no type")
)

// Event is a single notification received from the alert service.  It is
// never stored; it lives only as long as it takes to dispatch it.
type Event struct {
	// For names the account type the event originated from.  Empty means
	// the field was absent or falsy.
	For     string `json:"for,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`

	ID       string          `json:"id"`
	Source   string          `json:"source"`
	Received time.Time       `json:"received"`
	Raw      json.RawMessage `json:"raw,omitempty"`

	hasMessage bool
}

// HasMessage reports whether the payload carried a message field.
func (e Event) HasMessage() bool {
	return e.hasMessage
}

// ParseEvent validates and decodes a raw notification payload.  The payload
// must be a JSON object with a non-empty string "type".  A falsy "for"
// (absent, null, false, 0 or "") means no account tag; any other non-string
// tag is kept as raw JSON and so matches no account.  A non-string
// "message", such as the list the service sends for some alerts, is kept
// as its raw JSON text.
func ParseEvent(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Event{}, fmt.Errorf("%w: want object, got %s", ErrMalformed, root.Type)
	}

	var evt Event

	typ := root.Get("type")
	switch {
	case !typ.Exists() || typ.Type == gjson.Null:
		return Event{}, ErrMissingType
	case typ.Type != gjson.String:
		return Event{}, fmt.Errorf("%w: type is %s", ErrMalformed, typ.Type)
	case typ.Str == "":
		return Event{}, ErrMissingType
	}
	evt.Type = typ.Str

	if f := root.Get("for"); truthy(f) {
		evt.For = text(f)
	}

	if m := root.Get("message"); m.Exists() && m.Type != gjson.Null {
		evt.Message = text(m)
		evt.hasMessage = true
	}

	if id := root.Get("event_id"); id.Type == gjson.String && id.Str != "" {
		evt.ID = id.Str
	} else {
		evt.ID = ksuid.New().String()
	}

	evt.Received = time.Now().UTC()
	evt.Raw = append(json.RawMessage(nil), payload...)
	return evt, nil
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	}
	return r.Exists()
}

func text(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
