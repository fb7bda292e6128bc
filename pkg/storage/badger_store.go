package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/log"
	"rental-scraper/pkg/models"
	"rental-scraper/pkg/utils"
)

const (
	listingKeyPrefix = "listing:"  // Prefix for ref_id keys in DB
	statusDBDir      = "status_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the ListingStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) TrackedCount
}

// NewBadgerStore initializes and returns a new BadgerStore. The DB lives in a
// per-site subdirectory of stateDir so multiple sites never share status.
// With reset=true any existing state is removed first (force re-scrape).
func NewBadgerStore(stateDir, site string, reset bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	dbDirName := utils.SanitizeFilename(site) + "_" + statusDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if reset {
		logger.Warnf("Reset requested. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing scrape-status database at: %s (Reset: %v)", dbPath, reset)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest outcome per ref matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		logger.Infof("Loaded existing tracked-ref count: %d", count)
	}

	logger.Info("Scrape-status database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// CheckListingStatus implements the ListingStore interface
func (s *BadgerStore) CheckListingStatus(refID string) (models.ScrapeStatus, *models.ListingDBEntry, error) {
	status := models.ScrapeStatusNotFound
	var entry *models.ListingDBEntry = nil
	key := []byte(listingKeyPrefix + refID)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			status = models.ScrapeStatusNotFound
			return nil // Not an error for this function's purpose
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting listing key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.ScrapeStatusPending // Key exists but no outcome yet
				return nil
			}

			var decodedEntry models.ListingDBEntry
			if errJson := json.Unmarshal(val, &decodedEntry); errJson != nil {
				s.log.Warnf("Failed to unmarshal ListingDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
				status = models.ScrapeStatusPending
				return nil
			}

			entry = &decodedEntry
			status = decodedEntry.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckListingStatus for key '%s': %v", string(key), errView)
		return models.ScrapeStatusDBError, nil, errView
	}

	return status, entry, nil
}

// UpdateListingStatus implements the ListingStore interface
func (s *BadgerStore) UpdateListingStatus(refID string, entry *models.ListingDBEntry) error {
	if s.db == nil {
		return errors.New("status DB not initialized")
	}
	key := []byte(listingKeyPrefix + refID)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal ListingDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		e := badger.NewEntry(key, entryBytes)
		return txn.SetEntry(e)
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateListingStatus: %v", err)
		return fmt.Errorf("%w: failed setting listing status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated listing status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// CountByStatus implements the ListingStore interface
func (s *BadgerStore) CountByStatus(ctx context.Context) (map[models.ScrapeStatus]int, error) {
	counts := make(map[models.ScrapeStatus]int)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(listingKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			errVal := item.Value(func(val []byte) error {
				if len(val) == 0 {
					counts[models.ScrapeStatusPending]++
					return nil
				}
				var entry models.ListingDBEntry
				if errJson := json.Unmarshal(val, &entry); errJson != nil {
					s.log.Warnf("Skipping undecodable entry for key '%s': %v", string(item.Key()), errJson)
					return nil
				}
				counts[entry.Status]++
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: scanning status counts: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// TrackedCount implements the ListingStore interface.
// Returns the cached key count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) TrackedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Debug("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// Close implements the ListingStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing scrape-status DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing scrape-status DB: %v", err)
			return err
		}
		s.log.Info("Scrape-status DB closed.")
		return nil
	}
	s.log.Info("Scrape-status DB already closed or was not initialized.")
	return nil
}
