package models

import (
	"time"

	"github.com/tailfeather/fedd/internal/snowflake"
)

// A Delivery is one pending signed POST to a remote inbox. Rows are
// created when an activity is dispatched and removed on success, or
// moved to DeadLetter when they fail permanently. The auto-incremented
// ID preserves the order activities were generated in: deliveries to
// the same inbox for the same account are attempted strictly in ID
// order.
type Delivery struct {
	ID          uint32 `gorm:"primarykey"`
	CreatedAt   time.Time
	AccountID   snowflake.ID `gorm:"index:idx_delivery_lane;not null"`
	Inbox       string       `gorm:"index:idx_delivery_lane;size:128;not null"`
	ActivityID  string       `gorm:"size:128;not null"`
	KeyID       string       `gorm:"size:128;not null"`
	Body        []byte       `gorm:"not null"`
	Attempts    int          `gorm:"default:0;not null"`
	NextAttempt time.Time    `gorm:"index;not null"`
	LastResult  string       `gorm:"size:255"`
}

// A DeadLetter records a delivery that exhausted its retries or was
// permanently rejected, for operator visibility. Dead letters are
// never retried automatically.
type DeadLetter struct {
	ID         uint32 `gorm:"primarykey"`
	CreatedAt  time.Time
	AccountID  snowflake.ID `gorm:"index;not null"`
	Inbox      string       `gorm:"size:128;not null"`
	ActivityID string       `gorm:"size:128;not null"`
	Body       []byte       `gorm:"not null"`
	Attempts   int          `gorm:"not null"`
	LastError  string       `gorm:"size:255"`
}
