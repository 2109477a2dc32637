package models

import (
	"gorm.io/gorm"
	"time"
)

// Entry is a single episode of a feed. Enclosure is the media URL and the
// dedup key of the ledger; entries without one never get this far.
type Entry struct {
	Author    string
	Enclosure string
	Link      string
	Published time.Time
	Summary   string
	Title     string
	Tags      []string
}

// LedgerEntry is the database row of a completed download.
type LedgerEntry struct {
	gorm.Model
	Feed      string `gorm:"index;size:255"`
	Title     string
	Url       string `gorm:"size:2048"`
	Published string `gorm:"size:64"`
}
