package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-scraper/pkg/models"
	"rental-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBadgerStore(dir, "rentals.example.com", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.TrackedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("reopen preserves data", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "rentals.example.com", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateListingStatus("r100", &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			LastAttempt: time.Now(),
		}))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "rentals.example.com", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.TrackedCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		status, _, err := store2.CheckListingStatus("r100")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusSuccess, status)
	})

	t.Run("reset wipes data", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "rentals.example.com", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateListingStatus("r100", &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			LastAttempt: time.Now(),
		}))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "rentals.example.com", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.TrackedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("different sites do not share state", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		storeA, err := NewBadgerStore(dir, "site-a.example.com", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { storeA.Close() })
		require.NoError(t, storeA.UpdateListingStatus("r1", &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			LastAttempt: time.Now(),
		}))

		storeB, err := NewBadgerStore(dir, "site-b.example.com", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { storeB.Close() })

		status, _, err := storeB.CheckListingStatus("r1")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusNotFound, status)
	})
}

func TestCheckListingStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		status, entry, err := store.CheckListingStatus("missing")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("success entry", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		dbEntry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			ScrapedAt:   now,
			LastAttempt: now,
			UnitCount:   1,
		}
		require.NoError(t, store.UpdateListingStatus("r200", dbEntry))

		status, entry, err := store.CheckListingStatus("r200")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusSuccess, status)
		require.NotNil(t, entry)
		assert.Equal(t, 1, entry.UnitCount)
		assert.Equal(t, now.UTC(), entry.ScrapedAt.UTC())
	})

	t.Run("failure entry", func(t *testing.T) {
		dbEntry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusFailure,
			ErrorType:   "navigation",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateListingStatus("r201", dbEntry))

		status, entry, err := store.CheckListingStatus("r201")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusFailure, status)
		require.NotNil(t, entry)
		assert.Equal(t, "navigation", entry.ErrorType)
	})

	t.Run("corrupted JSON falls back to pending", func(t *testing.T) {
		key := []byte(listingKeyPrefix + "corrupt")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		status, entry, err := store.CheckListingStatus("corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusPending, status)
		assert.Nil(t, entry)
	})
}

func TestUpdateListingStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry", func(t *testing.T) {
		entry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			LastAttempt: time.Now(),
		}
		err := store.UpdateListingStatus("r300", entry)
		require.NoError(t, err)

		count, _ := store.TrackedCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite existing", func(t *testing.T) {
		entry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusFailure,
			ErrorType:   "http_500",
			LastAttempt: time.Now(),
		}
		err := store.UpdateListingStatus("r300", entry)
		require.NoError(t, err)

		// Count should not increase on overwrite
		count, _ := store.TrackedCount()
		assert.Equal(t, 1, count)

		status, got, err := store.CheckListingStatus("r300")
		require.NoError(t, err)
		assert.Equal(t, models.ScrapeStatusFailure, status)
		assert.Equal(t, "http_500", got.ErrorType)
	})

	t.Run("multi-unit fan-out count survives round-trip", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		entry := &models.ListingDBEntry{
			Status:      models.ScrapeStatusSuccess,
			ScrapedAt:   now,
			LastAttempt: now,
			UnitCount:   4,
		}
		require.NoError(t, store.UpdateListingStatus("r301", entry))

		_, got, err := store.CheckListingStatus("r301")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 4, got.UnitCount)
	})
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("empty store", func(t *testing.T) {
		counts, err := store.CountByStatus(context.Background())
		require.NoError(t, err)
		assert.Empty(t, counts)
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.UpdateListingStatus("a", &models.ListingDBEntry{Status: models.ScrapeStatusSuccess, LastAttempt: now}))
		require.NoError(t, store.UpdateListingStatus("b", &models.ListingDBEntry{Status: models.ScrapeStatusSuccess, LastAttempt: now}))
		require.NoError(t, store.UpdateListingStatus("c", &models.ListingDBEntry{Status: models.ScrapeStatusFailure, ErrorType: "navigation", LastAttempt: now}))

		counts, err := store.CountByStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, counts[models.ScrapeStatusSuccess])
		assert.Equal(t, 1, counts[models.ScrapeStatusFailure])
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.CountByStatus(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			store.RunGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
			// success
		case <-time.After(2 * time.Second):
			t.Fatal("RunGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("normal close", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), "rentals.example.com", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("double close does not panic", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), "rentals.example.com", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
