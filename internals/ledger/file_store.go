package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const fileExtension = ".json"

// FileStore keeps one JSON file per feed in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore for dir, creating it when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &FileStore{Dir: dir}, nil
}

// Path is the ledger file of feed.
func (s *FileStore) Path(feed string) string {
	return filepath.Join(s.Dir, feed+fileExtension)
}

// Load reads the ledger file of feed. A missing file is an empty ledger.
func (s *FileStore) Load(feed string) ([]Record, error) {
	data, err := os.ReadFile(s.Path(feed))
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read ledger %s", s.Path(feed))
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &StateCorruptionError{Feed: feed, Err: err}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Save writes the records to a temporary file next to the ledger and
// renames it over the ledger, so an interrupted write never leaves a
// truncated ledger behind.
func (s *FileStore) Save(feed string, records []Record) (err error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ledger")
	}

	tmp, err := os.CreateTemp(s.Dir, feed+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp ledger")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Wrap(err, "write temp ledger")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp ledger")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp ledger")
	}
	if err = os.Rename(tmp.Name(), s.Path(feed)); err != nil {
		return errors.Wrapf(err, "replace ledger %s", s.Path(feed))
	}
	return nil
}
