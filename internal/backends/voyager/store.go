// Package voyager reads the legacy ILS patron mirror. The mirror exists
// only to resolve patron barcodes for the resource-sharing gateways that
// still key on them.
package voyager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	// Registers the postgres driver the mirror is served from.
	_ "github.com/lib/pq"

	"github.com/culsys/valet-service/internal/bib"
)

// Store answers patron lookups against the legacy mirror.
type Store struct {
	db *sqlx.DB
}

// Open connects to the mirror.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening voyager mirror: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type patronRow struct {
	PatronID      int64          `db:"patron_id"`
	InstitutionID string         `db:"institution_id"`
	ExpireDate    sql.NullTime   `db:"expire_date"`
	TotalFeesDue  sql.NullString `db:"total_fees_due"`
}

// PatronID resolves a login name to the legacy patron id.
func (s *Store) PatronID(ctx context.Context, uni string) (int64, error) {
	const query = `
		SELECT patron_id, institution_id, expire_date, total_fees_due
		FROM   patron
		WHERE  institution_id = $1`

	var row patronRow
	if err := s.db.GetContext(ctx, &row, query, uni); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, bib.NewNotFoundError("patron", uni)
		}
		return 0, fmt.Errorf("querying patron %s: %w", uni, err)
	}
	return row.PatronID, nil
}

// PatronBarcode resolves a login name to an active patron barcode,
// restricted to the patron groups the resource-sharing agreements cover.
func (s *Store) PatronBarcode(ctx context.Context, uni string) (string, error) {
	patronID, err := s.PatronID(ctx, uni)
	if err != nil {
		return "", err
	}

	const query = `
		SELECT patron_barcode
		FROM   patron_barcode
		WHERE  patron_id = $1
		AND    barcode_status = '1'
		AND    patron_group_id IN ('2', '3', '4', '14', '15')`

	var barcode string
	if err := s.db.GetContext(ctx, &barcode, query, patronID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", bib.NewNotFoundError("patron barcode", uni)
		}
		return "", fmt.Errorf("querying barcode for patron %d: %w", patronID, err)
	}
	return barcode, nil
}

// InactiveItemBarcodes returns the retired barcodes that once labeled
// the item currently carrying the given barcode. Storage staff use
// these to find older labels still on the physical piece.
func (s *Store) InactiveItemBarcodes(ctx context.Context, barcode string) ([]string, error) {
	const query = `
		SELECT ib.item_barcode
		FROM   item_barcode ib
		WHERE  ib.barcode_status <> '1'
		AND    ib.item_id = (
		       SELECT item_id
		       FROM   item_barcode
		       WHERE  item_barcode = $1
		       AND    barcode_status = '1')`

	var barcodes []string
	if err := s.db.SelectContext(ctx, &barcodes, query, barcode); err != nil {
		return nil, fmt.Errorf("querying inactive barcodes for %s: %w", barcode, err)
	}
	return barcodes, nil
}
