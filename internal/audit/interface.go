package audit

import (
	"context"
	"time"
)

// Recorder stores speed changes that reached the fan.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository defines the interface for audit storage
type Repository interface {
	Record(entry *Entry) error
	Close() error
}

// Entry is one applied speed change.
type Entry struct {
	Timestamp     time.Time
	Speed         uint8
	PreviousSpeed uint8
}
