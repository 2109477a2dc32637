package ledger

import (
	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/models"
	"gorm.io/gorm"
)

// DBStore keeps ledgers as rows of a gorm database.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore migrates the ledger table and returns a store on db.
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	if err := db.AutoMigrate(&models.LedgerEntry{}); err != nil {
		return nil, errors.Wrap(err, "migrate ledger table")
	}
	return &DBStore{db: db}, nil
}

// Load returns the records of feed in insertion order.
func (s *DBStore) Load(feed string) ([]Record, error) {
	var rows []models.LedgerEntry
	if err := s.db.Where(&models.LedgerEntry{Feed: feed}).Order("id asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "load ledger of feed %q", feed)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{Title: row.Title, URL: row.Url, Published: row.Published})
	}
	return records, nil
}

// Save replaces the rows of feed inside one transaction.
func (s *DBStore) Save(feed string, records []Record) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("feed = ?", feed).Delete(&models.LedgerEntry{}).Error; err != nil {
			return errors.Wrapf(err, "clear ledger of feed %q", feed)
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]models.LedgerEntry, 0, len(records))
		for _, r := range records {
			rows = append(rows, models.LedgerEntry{Feed: feed, Title: r.Title, Url: r.URL, Published: r.Published})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return errors.Wrapf(err, "write ledger of feed %q", feed)
		}
		return nil
	})
}
