// Package codec parses raw queue payloads into one of the broker's five
// typed notification variants, or drops them as unwanted. It mirrors the
// format/sourceType dispatch shape of a normalizer registry, but picks a
// variant by discriminator string equality instead of a lookup table,
// since the kind set here is fixed and small.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies which notification variant a decoded message carries.
type Kind string

// The five recognized notification kinds. A decode that doesn't match
// any of these resolves to ErrUnwanted instead.
const (
	KindLogin              Kind = "login"
	KindSubscriptionUpdate Kind = "subscriptionUpdate"
	KindDelete             Kind = "delete"
	KindProfileChange      Kind = "profileChange"
	KindPasswordChange     Kind = "passwordChange"
)

// ErrUnwanted is returned (wrapped with a reason) for any payload the
// processor should drop without retry: an unrecognized event string, or
// a recognized one missing required fields. errors.Is(err, ErrUnwanted)
// identifies both cases; the wrapped text carries the specific reason
// for the debug log.
var ErrUnwanted = errors.New("unwanted notification")

// Notification is the tagged-union interface every decoded variant
// satisfies. The processor dispatches with a type switch over the
// concrete variants; a variant it does not handle reaches that switch's
// default branch, which panics instead of silently falling through.
type Notification interface {
	Kind() Kind

	// Timestamp is the event's own millisecond change time, used for the
	// queue-delay metric regardless of variant.
	Timestamp() int64
}

// LoginNotification records an authentication event. ClientID is empty
// when the upstream event carried none, which must produce no login
// record and no publish.
type LoginNotification struct {
	UID          string
	ClientID     string
	ChangeTimeMS int64
}

// Kind implements Notification.
func (LoginNotification) Kind() Kind { return KindLogin }

// Timestamp implements Notification.
func (n LoginNotification) Timestamp() int64 { return n.ChangeTimeMS }

// SubscriptionUpdateNotification records a subscription state change.
// Event carries the original wire discriminator ("subscription:update")
// for echo onto the outbound body.
type SubscriptionUpdateNotification struct {
	Event               string
	UID                 string
	ChangeTimeMS        int64
	IsActive            bool
	ProductCapabilities []string
}

// Kind implements Notification.
func (SubscriptionUpdateNotification) Kind() Kind { return KindSubscriptionUpdate }

// Timestamp implements Notification.
func (n SubscriptionUpdateNotification) Timestamp() int64 { return n.ChangeTimeMS }

// DeleteNotification records an account deletion.
type DeleteNotification struct {
	Event        string
	UID          string
	ChangeTimeMS int64
}

// Kind implements Notification.
func (DeleteNotification) Kind() Kind { return KindDelete }

// Timestamp implements Notification.
func (n DeleteNotification) Timestamp() int64 { return n.ChangeTimeMS }

// ProfileChangeNotification records a profile edit or primary-email
// change — both wire events decode into this same variant.
type ProfileChangeNotification struct {
	Event        string
	UID          string
	ChangeTimeMS int64
}

// Kind implements Notification.
func (ProfileChangeNotification) Kind() Kind { return KindProfileChange }

// Timestamp implements Notification.
func (n ProfileChangeNotification) Timestamp() int64 { return n.ChangeTimeMS }

// PasswordChangeNotification records a password change or reset — both
// wire events decode into this same variant.
type PasswordChangeNotification struct {
	Event        string
	UID          string
	ChangeTimeMS int64
}

// Kind implements Notification.
func (PasswordChangeNotification) Kind() Kind { return KindPasswordChange }

// Timestamp implements Notification.
func (n PasswordChangeNotification) Timestamp() int64 { return n.ChangeTimeMS }

// envelope is the superset of fields any recognized event may carry.
// Required-field validation happens per variant in Decode, not here.
type envelope struct {
	Event               string   `json:"event"`
	UID                 string   `json:"uid"`
	ClientID            string   `json:"clientId"`
	Timestamp           *int64   `json:"timestamp"`
	TS                  *int64   `json:"ts"`
	EventCreatedAt      *float64 `json:"eventCreatedAt"`
	IsActive            *bool    `json:"isActive"`
	ProductCapabilities []string `json:"productCapabilities"`
}

// changeTimeMS resolves the millisecond timestamp: prefer an explicit
// "timestamp" (already ms); fall back to "ts" (seconds, multiplied by
// 1000). ok is false when neither field was present.
func (e *envelope) changeTimeMS() (int64, bool) {
	if e.Timestamp != nil {
		return *e.Timestamp, true
	}
	if e.TS != nil {
		return *e.TS * 1000, true
	}
	return 0, false
}

// Decode parses a raw queue message body and returns one of the five
// typed variants, or ErrUnwanted (wrapped with a reason) for anything
// that should be dropped. Malformed JSON and a recognized-but-incomplete
// payload both resolve to ErrUnwanted: redelivery cannot repair either.
func Decode(raw []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed json: %v", ErrUnwanted, err)
	}

	if env.UID == "" {
		return nil, fmt.Errorf("%w: missing uid for event %q", ErrUnwanted, env.Event)
	}

	switch env.Event {
	case "login":
		changeTimeMS, _ := env.changeTimeMS()
		return LoginNotification{
			UID:          env.UID,
			ClientID:     env.ClientID,
			ChangeTimeMS: changeTimeMS,
		}, nil

	case "subscription:update":
		if env.EventCreatedAt == nil {
			return nil, fmt.Errorf("%w: subscription:update missing eventCreatedAt", ErrUnwanted)
		}
		if env.IsActive == nil {
			return nil, fmt.Errorf("%w: subscription:update missing isActive", ErrUnwanted)
		}
		if env.ProductCapabilities == nil {
			return nil, fmt.Errorf("%w: subscription:update missing productCapabilities", ErrUnwanted)
		}
		return SubscriptionUpdateNotification{
			Event:               env.Event,
			UID:                 env.UID,
			ChangeTimeMS:        int64(*env.EventCreatedAt * 1000),
			IsActive:            *env.IsActive,
			ProductCapabilities: env.ProductCapabilities,
		}, nil

	case "delete":
		changeTimeMS, ok := env.changeTimeMS()
		if !ok {
			return nil, fmt.Errorf("%w: delete missing timestamp/ts", ErrUnwanted)
		}
		return DeleteNotification{Event: env.Event, UID: env.UID, ChangeTimeMS: changeTimeMS}, nil

	case "primaryEmailChanged", "profileDataChange":
		changeTimeMS, ok := env.changeTimeMS()
		if !ok {
			return nil, fmt.Errorf("%w: %s missing timestamp/ts", ErrUnwanted, env.Event)
		}
		return ProfileChangeNotification{Event: env.Event, UID: env.UID, ChangeTimeMS: changeTimeMS}, nil

	case "passwordChange", "reset":
		changeTimeMS, ok := env.changeTimeMS()
		if !ok {
			return nil, fmt.Errorf("%w: %s missing timestamp/ts", ErrUnwanted, env.Event)
		}
		return PasswordChangeNotification{Event: env.Event, UID: env.UID, ChangeTimeMS: changeTimeMS}, nil

	default:
		return nil, fmt.Errorf("%w: unrecognized event %q", ErrUnwanted, env.Event)
	}
}
