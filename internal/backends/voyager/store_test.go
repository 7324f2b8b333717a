package voyager

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/bib"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPatronID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT patron_id, institution_id, expire_date, total_fees_due`).
		WithArgs("ab1234").
		WillReturnRows(sqlmock.NewRows(
			[]string{"patron_id", "institution_id", "expire_date", "total_fees_due"}).
			AddRow(int64(100045), "ab1234", nil, nil))

	id, err := store.PatronID(context.Background(), "ab1234")
	require.NoError(t, err)
	assert.Equal(t, int64(100045), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatronID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM\s+patron`).
		WithArgs("zz9999").
		WillReturnRows(sqlmock.NewRows(
			[]string{"patron_id", "institution_id", "expire_date", "total_fees_due"}))

	_, err := store.PatronID(context.Background(), "zz9999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bib.ErrNotFound))
	assert.Contains(t, err.Error(), "zz9999")
}

func TestPatronBarcode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM\s+patron`).
		WithArgs("ab1234").
		WillReturnRows(sqlmock.NewRows(
			[]string{"patron_id", "institution_id", "expire_date", "total_fees_due"}).
			AddRow(int64(100045), "ab1234", nil, nil))
	mock.ExpectQuery(`SELECT patron_barcode`).
		WithArgs(int64(100045)).
		WillReturnRows(sqlmock.NewRows([]string{"patron_barcode"}).AddRow("2131234567890"))

	barcode, err := store.PatronBarcode(context.Background(), "ab1234")
	require.NoError(t, err)
	assert.Equal(t, "2131234567890", barcode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatronBarcode_NoActiveBarcode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM\s+patron`).
		WithArgs("cd5678").
		WillReturnRows(sqlmock.NewRows(
			[]string{"patron_id", "institution_id", "expire_date", "total_fees_due"}).
			AddRow(int64(200031), "cd5678", nil, nil))
	mock.ExpectQuery(`SELECT patron_barcode`).
		WithArgs(int64(200031)).
		WillReturnRows(sqlmock.NewRows([]string{"patron_barcode"}))

	_, err := store.PatronBarcode(context.Background(), "cd5678")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bib.ErrNotFound))
}

func TestInactiveItemBarcodes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT ib.item_barcode`).
		WithArgs("CU10000001").
		WillReturnRows(sqlmock.NewRows([]string{"item_barcode"}).
			AddRow("CU09990001").
			AddRow("CU09990002"))

	barcodes, err := store.InactiveItemBarcodes(context.Background(), "CU10000001")
	require.NoError(t, err)
	assert.Equal(t, []string{"CU09990001", "CU09990002"}, barcodes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInactiveItemBarcodes_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT ib.item_barcode`).
		WithArgs("CU10000001").
		WillReturnError(errors.New("ORA-12541: no listener"))

	_, err := store.InactiveItemBarcodes(context.Background(), "CU10000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive barcodes for CU10000001")
}
