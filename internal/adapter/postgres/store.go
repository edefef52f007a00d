package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the postgres dialect
	"github.com/lib/pq"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/retry"
)

const (
	// TargetTable holds the address rows being backfilled.
	TargetTable = "service_search_view"

	// CacheTable holds fingerprint cache entries keyed by address_key.
	CacheTable = "geocode_cache"

	pingTimeout = 5 * time.Second
)

// updateCoordinatesSQL applies every resolved pair in one statement by
// zipping three parallel arrays into a derived table.
const updateCoordinatesSQL = `
	UPDATE ` + TargetTable + ` AS s
	SET latitude  = v.lat,
	    longitude = v.lon
	FROM (
		SELECT unnest($1::double precision[]) AS lat,
		       unnest($2::double precision[]) AS lon,
		       unnest($3::bigint[])           AS id
	) AS v
	WHERE s.id = v.id`

// Store implements domain.Store on PostgreSQL.
type Store struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// Open connects to dsn and pings it under policy. When dsn does not name an
// sslmode one is chosen from the host, see WithSSLMode.
func Open(ctx context.Context, dsn string, policy retry.Policy, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", WithSSLMode(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	err = policy.Do(ctx, func(attempt int) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("postgres ping failed", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("connected to postgres")
	return New(db), nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin acquires a dedicated connection and starts a transaction on it.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{conn: conn, tx: tx, dialect: s.dialect}, nil
}

// Tx implements domain.Tx.
type Tx struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect goqu.DialectWrapper
}

func (t *Tx) SelectPending(ctx context.Context, limit int) ([]domain.AddressRecord, error) {
	query, args, err := t.dialect.From(TargetTable).
		Select("id", "address", "suburb", "state", goqu.L("postcode::text"), "address_key").
		Where(
			goqu.Or(
				goqu.C("latitude").IsNull(),
				goqu.C("longitude").IsNull(),
			),
			goqu.Or(
				goqu.L("NULLIF(TRIM(address), '') IS NOT NULL"),
				goqu.L("NULLIF(TRIM(suburb), '') IS NOT NULL"),
				goqu.L("NULLIF(TRIM(postcode::text), '') IS NOT NULL"),
			),
		).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending rows: %w", err)
	}
	defer rows.Close()

	var records []domain.AddressRecord
	for rows.Next() {
		var (
			rec                                   domain.AddressRecord
			address, suburb, state, postcode, key sql.NullString
		)
		if err := rows.Scan(&rec.ID, &address, &suburb, &state, &postcode, &key); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		rec.Address = address.String
		rec.Suburb = suburb.String
		rec.State = state.String
		rec.Postcode = postcode.String
		rec.AddressKey = key.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select pending rows: %w", err)
	}
	return records, nil
}

func (t *Tx) LoadCache(ctx context.Context) (map[string]*domain.Coordinates, error) {
	query, args, err := t.dialect.From(CacheTable).
		Select("address_key", "latitude", "longitude").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build cache query: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load geocode cache: %w", err)
	}
	defer rows.Close()

	cache := make(map[string]*domain.Coordinates)
	for rows.Next() {
		var (
			key      string
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&key, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		if lat.Valid && lon.Valid {
			cache[key] = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		} else {
			cache[key] = nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load geocode cache: %w", err)
	}
	return cache, nil
}

func (t *Tx) UpsertCache(ctx context.Context, entries []domain.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]any, len(entries))
	for i, e := range entries {
		var lat, lon any
		if e.Coords != nil {
			lat, lon = e.Coords.Lat, e.Coords.Lon
		}
		rows[i] = goqu.Record{
			"address_key": e.Key,
			"latitude":    lat,
			"longitude":   lon,
			"provider":    e.Provider,
			"raw_json":    rawJSON(e.Raw),
			"created_at":  goqu.L("now()"),
		}
	}

	query, args, err := t.dialect.Insert(CacheTable).
		Rows(rows...).
		OnConflict(goqu.DoUpdate("address_key", goqu.Record{
			"latitude":   goqu.L("EXCLUDED.latitude"),
			"longitude":  goqu.L("EXCLUDED.longitude"),
			"provider":   goqu.L("EXCLUDED.provider"),
			"raw_json":   goqu.L("EXCLUDED.raw_json"),
			"created_at": goqu.L("now()"),
		})).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build cache upsert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert geocode cache: %w", err)
	}
	return nil
}

func (t *Tx) UpdateCoordinates(ctx context.Context, updates []domain.CoordinateUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	lats := make([]float64, len(updates))
	lons := make([]float64, len(updates))
	ids := make([]int64, len(updates))
	for i, u := range updates {
		lats[i], lons[i], ids[i] = u.Lat, u.Lon, u.ID
	}

	if _, err := t.tx.ExecContext(ctx, updateCoordinatesSQL, pq.Array(lats), pq.Array(lons), pq.Array(ids)); err != nil {
		return fmt.Errorf("update coordinates: %w", err)
	}
	return nil
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close returns the dedicated connection to the pool.
func (t *Tx) Close() error {
	return t.conn.Close()
}

func rawJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
