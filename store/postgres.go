package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZaitsWit/re-scraper/listing"
)

// Postgres is the production store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// InitSchema creates the tables on startup when they do not exist yet.
// Uniqueness of (source, external_id) is deliberately not enforced by the
// schema; the reconciliation engine owns that invariant.
func (p *Postgres) InitSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS listings (
	id           BIGSERIAL PRIMARY KEY,
	source       VARCHAR(32)  NOT NULL,
	external_id  VARCHAR(64),
	title        VARCHAR(512),
	address      VARCHAR(512),
	rooms        INTEGER,
	area_m2      DOUBLE PRECISION,
	floor        INTEGER,
	floors_total INTEGER,
	price_rub    BIGINT,
	price_per_m2 DOUBLE PRECISION,
	url          VARCHAR(1024),
	phone_hash   VARCHAR(64),
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_listings_source      ON listings (source);
CREATE INDEX IF NOT EXISTS ix_listings_external_id ON listings (external_id);
CREATE INDEX IF NOT EXISTS ix_listings_address     ON listings (address);
CREATE INDEX IF NOT EXISTS ix_listings_active      ON listings (active);
CREATE INDEX IF NOT EXISTS ix_listings_source_ext  ON listings (source, external_id);

CREATE TABLE IF NOT EXISTS price_snapshots (
	id           BIGSERIAL PRIMARY KEY,
	listing_id   BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	ts           TIMESTAMPTZ NOT NULL DEFAULT now(),
	price_rub    BIGINT,
	price_per_m2 DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS ix_price_snapshots_listing_id ON price_snapshots (listing_id);
CREATE INDEX IF NOT EXISTS ix_price_snapshots_ts         ON price_snapshots (ts);
`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

const listingColumns = `id, source, external_id, title, address, rooms, area_m2,
	floor, floors_total, price_rub, price_per_m2, url, active, created_at, updated_at`

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var l listing.Listing
	var externalID, title, address, url *string
	err := row.Scan(&l.ID, &l.Source, &externalID, &title, &address, &l.Rooms,
		&l.AreaM2, &l.Floor, &l.FloorsTotal, &l.PriceRub, &l.PricePerM2,
		&url, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if externalID != nil {
		l.ExternalID = *externalID
	}
	if title != nil {
		l.Title = *title
	}
	if address != nil {
		l.Address = *address
	}
	if url != nil {
		l.URL = *url
	}
	return &l, nil
}

func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]listing.Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSnapshots(ctx context.Context, listingID int64) ([]listing.PriceSnapshot, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, listing_id, ts, price_rub, price_per_m2
		   FROM price_snapshots WHERE listing_id = $1 ORDER BY ts ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []listing.PriceSnapshot
	for rows.Next() {
		var s listing.PriceSnapshot
		if err := rows.Scan(&s.ID, &s.ListingID, &s.TS, &s.PriceRub, &s.PricePerM2); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindBySourceExternalID(ctx context.Context, source, externalID string) (*listing.Listing, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings
		  WHERE source = $1 AND external_id = $2
		  ORDER BY id LIMIT 1`, source, externalID)
	l, err := scanListing(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find listing: %w", err)
	}
	return l, nil
}

func (t *pgTx) InsertListing(ctx context.Context, l listing.Listing) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO listings
		 (source, external_id, title, address, rooms, area_m2, floor, floors_total,
		  price_rub, price_per_m2, url, active)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id`,
		l.Source, l.ExternalID, l.Title, l.Address, l.Rooms, l.AreaM2,
		l.Floor, l.FloorsTotal, l.PriceRub, l.PricePerM2, l.URL, l.Active,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert listing: %w", err)
	}
	return id, nil
}

func (t *pgTx) UpdateListingPrice(ctx context.Context, id int64, priceRub int64, pricePerM2 float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE listings SET price_rub = $2, price_per_m2 = $3, updated_at = now() WHERE id = $1`,
		id, priceRub, pricePerM2)
	if err != nil {
		return fmt.Errorf("store: update price: %w", err)
	}
	return nil
}

func (t *pgTx) AppendSnapshot(ctx context.Context, listingID int64, priceRub *int64, pricePerM2 *float64, ts time.Time) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO price_snapshots (listing_id, ts, price_rub, price_per_m2)
		 VALUES ($1,$2,$3,$4)`,
		listingID, ts.UTC(), priceRub, pricePerM2)
	if err != nil {
		return fmt.Errorf("store: append snapshot: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
