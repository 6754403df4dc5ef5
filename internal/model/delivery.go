package model

import "time"

type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusFailed DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) Valid() bool {
	return s == StatusSent || s == StatusFailed
}

// Delivery is one per-subscriber outcome of a broadcast run (ClickHouse deliveries table).
type Delivery struct {
	RunID          string         `db:"run_id"          json:"run_id"`
	FID            string         `db:"fid"             json:"fid"`
	NotificationID string         `db:"notification_id" json:"notification_id"`
	Status         DeliveryStatus `db:"status"          json:"status"`
	Error          string         `db:"error"           json:"error,omitempty"`
	CreatedAt      time.Time      `db:"created_at"      json:"created_at"`
}
