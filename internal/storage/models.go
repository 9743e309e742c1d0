package storage

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber maps an authorised chat username to the chat that receives alerts.
type Subscriber struct {
	Username  string
	ChatID    int64
	UpdatedAt time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID           int64
	EventID      uuid.UUID
	Channel      string
	Rule         string
	GlucoseValue *int
	ReadingTS    *time.Time
	Message      string
	Delivered    int
	Muted        int
	CreatedAt    time.Time
}
