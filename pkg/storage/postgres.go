package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/models"
	"rental-scraper/pkg/utils"
)

// PostgresImporter loads the deduplicated JSON dataset into the canonical
// PostgreSQL table. Rows upsert on ref_id so re-importing the same snapshot
// is idempotent and a fresher scrape replaces an older row.
type PostgresImporter struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewPostgresImporter opens a connection, verifies it with a bounded ping
// retry, and ensures the listings table exists.
func NewPostgresImporter(dsn string, log *logrus.Entry) (*PostgresImporter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres open: %w", utils.ErrDatabase, err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres ping failed after retries: %w", utils.ErrDatabase, err)
	}

	imp := &PostgresImporter{db: db, log: log}
	if err := imp.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: postgres migrate: %w", utils.ErrDatabase, err)
	}

	return imp, nil
}

func (imp *PostgresImporter) migrate() error {
	_, err := imp.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			ref_id             TEXT PRIMARY KEY,
			link               TEXT NOT NULL,
			city               TEXT NOT NULL DEFAULT '',
			beds               INTEGER,
			baths              NUMERIC(4,1),
			sqft               INTEGER,
			price              INTEGER,
			parking_spots      INTEGER,
			furnished          TEXT NOT NULL DEFAULT 'Unknown',
			utilities_included TEXT NOT NULL DEFAULT '',
			amenities          TEXT NOT NULL DEFAULT '',
			smoking_allowed    TEXT NOT NULL DEFAULT 'Unknown',
			full_description   TEXT NOT NULL DEFAULT '',
			building_type      TEXT NOT NULL DEFAULT '',
			available_date     TEXT NOT NULL DEFAULT '',
			lease_term         TEXT NOT NULL DEFAULT '',
			is_multi_unit      BOOLEAN NOT NULL DEFAULT FALSE,
			parent_ref_id      TEXT NOT NULL DEFAULT '',
			unit_type          TEXT NOT NULL DEFAULT '',
			units_available    INTEGER,
			building_address   TEXT NOT NULL DEFAULT '',
			scraped_at         TEXT NOT NULL DEFAULT '',
			imported_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_city          ON listings(city);
		CREATE INDEX IF NOT EXISTS idx_listings_price         ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_beds          ON listings(beds);
		CREATE INDEX IF NOT EXISTS idx_listings_parent_ref_id ON listings(parent_ref_id);
	`)
	return err
}

const importColumns = 22

// Import upserts records in batches. Returns the number of rows written.
func (imp *PostgresImporter) Import(records []models.Listing) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	const batchSize = 50
	written := 0
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))
		if err := imp.upsertBatch(records[i:end]); err != nil {
			return written, err
		}
		written += end - i
		imp.log.WithFields(logrus.Fields{"written": written, "total": len(records)}).Debug("Import batch committed")
	}
	return written, nil
}

func (imp *PostgresImporter) upsertBatch(batch []models.Listing) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*importColumns)

	for idx, l := range batch {
		base := idx * importColumns
		placeholders := make([]string, importColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.RefID, l.Link, l.City,
			l.Beds, l.Baths, l.Sqft, l.Price, l.ParkingSpots,
			l.Furnished,
			strings.Join(l.UtilitiesIncluded, ", "),
			strings.Join(l.Amenities, ", "),
			l.SmokingAllowed, l.FullDescription, l.BuildingType,
			l.AvailableDate, l.LeaseTerm,
			l.IsMultiUnit, l.ParentRefID, l.UnitType, l.UnitsAvailable,
			l.BuildingAddress, l.ScrapedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (
			ref_id, link, city,
			beds, baths, sqft, price, parking_spots,
			furnished, utilities_included, amenities,
			smoking_allowed, full_description, building_type,
			available_date, lease_term,
			is_multi_unit, parent_ref_id, unit_type, units_available,
			building_address, scraped_at
		)
		VALUES %s
		ON CONFLICT (ref_id) DO UPDATE SET
			link               = EXCLUDED.link,
			city               = EXCLUDED.city,
			beds               = EXCLUDED.beds,
			baths              = EXCLUDED.baths,
			sqft               = EXCLUDED.sqft,
			price              = EXCLUDED.price,
			parking_spots      = EXCLUDED.parking_spots,
			furnished          = EXCLUDED.furnished,
			utilities_included = EXCLUDED.utilities_included,
			amenities          = EXCLUDED.amenities,
			smoking_allowed    = EXCLUDED.smoking_allowed,
			full_description   = EXCLUDED.full_description,
			building_type      = EXCLUDED.building_type,
			available_date     = EXCLUDED.available_date,
			lease_term         = EXCLUDED.lease_term,
			is_multi_unit      = EXCLUDED.is_multi_unit,
			parent_ref_id      = EXCLUDED.parent_ref_id,
			unit_type          = EXCLUDED.unit_type,
			units_available    = EXCLUDED.units_available,
			building_address   = EXCLUDED.building_address,
			scraped_at         = EXCLUDED.scraped_at,
			imported_at        = NOW()
		WHERE EXCLUDED.scraped_at >= listings.scraped_at
	`, strings.Join(valueStrings, ","))

	if _, err := imp.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("%w: upserting batch of %d listings: %w", utils.ErrDatabase, len(batch), err)
	}
	return nil
}

// Count returns the number of rows currently in the listings table.
func (imp *PostgresImporter) Count() (int, error) {
	var n int
	if err := imp.db.QueryRow("SELECT COUNT(*) FROM listings").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting listings: %w", utils.ErrDatabase, err)
	}
	return n, nil
}

func (imp *PostgresImporter) Close() error {
	return imp.db.Close()
}
