package db

import (
	"time"

	"gorm.io/datatypes"
)

// Node is the latest value written at a store path. Only written paths get
// rows. A write drops the rows below it, and a delete leaves a null row so a
// restore clears the path over any ancestor value.
type Node struct {
	Path      string         `gorm:"primaryKey;size:512"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	Rev       int64          `gorm:"not null;index"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// Event is the append-only journal of committed writes.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	Path      string         `gorm:"size:512;index;not null"`
	Rev       int64          `gorm:"not null;index"`
	Deleted   bool           `gorm:"not null;default:false"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

// Session holds the tab-local identity values for clients that keep them
// server side. TabID is chosen by the client.
type Session struct {
	ID         uint      `gorm:"primaryKey"`
	TabID      string    `gorm:"size:64;uniqueIndex;not null"`
	Role       string    `gorm:"size:16"`
	PlayerName string    `gorm:"size:64"`
	ViewerName string    `gorm:"size:64"`
	UserID     string    `gorm:"size:64"`
	Seat       string    `gorm:"size:8"`
	Production bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
