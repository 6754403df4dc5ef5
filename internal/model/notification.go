package model

import "time"

// Notification is the JSON payload posted to a subscriber's endpoint.
type Notification struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

// DailyNotificationID is stable for a UTC day so the provider can dedupe repeated runs.
func DailyNotificationID(prefix string, t time.Time) string {
	return prefix + "-" + t.UTC().Format("2006-01-02")
}
