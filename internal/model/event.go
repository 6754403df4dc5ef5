package model

import (
	"encoding/json"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jmehdipour/notify-gateway/internal/util"
)

type EventType string

const (
	EventMiniAppAdded          EventType = "miniapp_added"
	EventMiniAppRemoved        EventType = "miniapp_removed"
	EventNotificationsEnabled  EventType = "notifications_enabled"
	EventNotificationsDisabled EventType = "notifications_disabled"
)

func (t EventType) String() string { return string(t) }

// UnmarshalJSON accepts any JSON value; non-strings decode to the empty,
// unrecognized event instead of failing the whole body.
func (t *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = ""
		return nil
	}
	*t = EventType(s)
	return nil
}

type EventClass int

const (
	EventClassUnrecognized EventClass = iota
	EventClassEnabled
	EventClassDisabled
)

func (c EventClass) String() string {
	switch c {
	case EventClassEnabled:
		return "enabled"
	case EventClassDisabled:
		return "disabled"
	default:
		return "unrecognized"
	}
}

// Class maps the raw event name onto enabled/disabled; anything else is unrecognized.
func (t EventType) Class() EventClass {
	switch EventType(strings.TrimSpace(string(t))) {
	case EventMiniAppAdded, EventNotificationsEnabled:
		return EventClassEnabled
	case EventMiniAppRemoved, EventNotificationsDisabled:
		return EventClassDisabled
	default:
		return EventClassUnrecognized
	}
}

// NotificationDetails carries the delivery credential issued by the push provider.
type NotificationDetails struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

func (d NotificationDetails) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Token, validation.Required, validation.Length(1, 512)),
		validation.Field(&d.URL, validation.Required, validation.Length(1, 1024), validation.By(httpURL)),
	)
}

// WebhookEvent is the body posted by the social client (and mirrored on Kafka).
type WebhookEvent struct {
	Event               EventType            `json:"event"`
	FID                 Identity             `json:"fid"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
}

func (e WebhookEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FID, validation.Required, validation.Length(1, 128)),
	)
}

// HasDetails is true when a usable token/url pair is present.
func (e WebhookEvent) HasDetails() bool {
	if e.NotificationDetails == nil {
		return false
	}
	return e.NotificationDetails.Validate() == nil
}

// Details returns the normalized token and endpoint.
func (e WebhookEvent) Details() (token, url string) {
	if e.NotificationDetails == nil {
		return "", ""
	}
	return strings.TrimSpace(e.NotificationDetails.Token), util.NormalizeEndpoint(e.NotificationDetails.URL)
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if !util.IsHTTPURL(s) {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}
