package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Customer is a customer record keyed by its platform-qualified id.
type Customer struct {
	CustomerID   string
	CustomerName string
	ContactEmail *string
	PhoneNumber  *string
}

// Order is an order record.
type Order struct {
	OrderID      string
	ProductID    string
	ProductName  string
	Category     string
	QuantitySold int64
	SellingPrice decimal.Decimal
	DateOfSale   *time.Time
	CustomerID   string
	PlatformID   int64
	CouponUsed   bool
	ReturnWindow int64

	// Nullable platform extras.
	PrimeDelivery        *bool
	WarehouseLocation    *string
	ResellerName         *string
	CommissionPercentage *decimal.Decimal
}

// Delivery is the delivery record of an order.
type Delivery struct {
	OrderID         string
	DeliveryAddress string
	DeliveryDate    *time.Time
	DeliveryStatus  string
	DeliveryPartner *string
}

// FailedRow is an audit record of a source row which could not be stored.
type FailedRow struct {
	BatchID      string `db:"batch_id" json:"batch_id"`
	Source       string `db:"source" json:"source"`
	PlatformName string `db:"platform_name" json:"platform_name"`
	RowNumber    int    `db:"row_number" json:"row_number"`
	OrderID      string `db:"order_id" json:"order_id"`
	Error        string `db:"error" json:"error"`
	RawRow       string `db:"raw_row" json:"raw_row"`
}

// RowTx is the transactional handle for writing one source row. It is only valid
// within the function passed to InRowTx.
type RowTx struct {
	tx *sqlx.Tx
	db *DB
}

// InRowTx runs fn in a new transaction, committing if fn returns nil and rolling back
// otherwise. A panic in fn rolls back the transaction before being re-raised.
func (db *DB) InRowTx(ctx context.Context, fn func(*RowTx) error) (err error) {

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin row transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback error: %w", rbErr))
		}
	}()

	if err = fn(&RowTx{tx: tx, db: db}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit row: %w", err)
	}
	return nil
}

// exec runs the parameterized statement within the row transaction.
func (rt *RowTx) exec(ctx context.Context, name string, stmt *parameterizedStmt, args map[string]any) (sql.Result, error) {
	if err := stmt.verifyArgs(args); err != nil {
		return nil, err
	}
	result, err := rt.tx.NamedStmtContext(ctx, stmt.NamedStmt).ExecContext(ctx, args)
	rt.db.logQuery(name, stmt, args, err)
	return result, err
}

// CustomerInsert inserts the customer if absent, reporting whether a row was written.
func (rt *RowTx) CustomerInsert(ctx context.Context, c Customer) (bool, error) {
	args := map[string]any{
		"CustomerID":   c.CustomerID,
		"CustomerName": c.CustomerName,
		"ContactEmail": c.ContactEmail,
		"PhoneNumber":  c.PhoneNumber,
	}
	result, err := rt.exec(ctx, "CustomerInsert", rt.db.customerInsertStmt, args)
	if err != nil {
		return false, fmt.Errorf("customer insert error for %q: %w", c.CustomerID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("customer insert rows affected error: %w", err)
	}
	return n > 0, nil
}

// PlatformInsert inserts the platform if absent.
func (rt *RowTx) PlatformInsert(ctx context.Context, name string) error {
	args := map[string]any{"PlatformName": name}
	if _, err := rt.exec(ctx, "PlatformInsert", rt.db.platformInsertStmt, args); err != nil {
		return fmt.Errorf("platform insert error for %q: %w", name, err)
	}
	return nil
}

// PlatformID returns the id of the named platform.
func (rt *RowTx) PlatformID(ctx context.Context, name string) (int64, error) {
	args := map[string]any{"PlatformName": name}
	stmt := rt.db.platformIDStmt
	if err := stmt.verifyArgs(args); err != nil {
		return 0, err
	}
	var id int64
	err := rt.tx.NamedStmtContext(ctx, stmt.NamedStmt).GetContext(ctx, &id, args)
	rt.db.logQuery("PlatformID", stmt, args, err)
	if err != nil {
		return 0, fmt.Errorf("platform id error for %q: %w", name, err)
	}
	return id, nil
}

// OrderInsert inserts the order. A duplicate order id is an error.
func (rt *RowTx) OrderInsert(ctx context.Context, o Order) error {
	args := map[string]any{
		"OrderID":              o.OrderID,
		"ProductID":            o.ProductID,
		"ProductName":          o.ProductName,
		"Category":             o.Category,
		"QuantitySold":         o.QuantitySold,
		"SellingPrice":         o.SellingPrice,
		"DateOfSale":           dateArg(o.DateOfSale),
		"CustomerID":           o.CustomerID,
		"PlatformID":           o.PlatformID,
		"CouponUsed":           o.CouponUsed,
		"ReturnWindow":         o.ReturnWindow,
		"PrimeDelivery":        o.PrimeDelivery,
		"WarehouseLocation":    o.WarehouseLocation,
		"ResellerName":         o.ResellerName,
		"CommissionPercentage": o.CommissionPercentage,
	}
	if _, err := rt.exec(ctx, "OrderInsert", rt.db.orderInsertStmt, args); err != nil {
		return fmt.Errorf("order insert error for %q: %w", o.OrderID, err)
	}
	return nil
}

// DeliveryInsert inserts the delivery of an existing order.
func (rt *RowTx) DeliveryInsert(ctx context.Context, d Delivery) error {
	args := map[string]any{
		"OrderID":         d.OrderID,
		"DeliveryAddress": d.DeliveryAddress,
		"DeliveryDate":    dateArg(d.DeliveryDate),
		"DeliveryStatus":  d.DeliveryStatus,
		"DeliveryPartner": d.DeliveryPartner,
	}
	if _, err := rt.exec(ctx, "DeliveryInsert", rt.db.deliveryInsertStmt, args); err != nil {
		return fmt.Errorf("delivery insert error for %q: %w", d.OrderID, err)
	}
	return nil
}

// FailedRowInsert records a failed row. It runs outside any row transaction and so
// must not be called from within InRowTx.
func (db *DB) FailedRowInsert(ctx context.Context, f FailedRow) error {
	args := map[string]any{
		"BatchID":      f.BatchID,
		"Source":       f.Source,
		"PlatformName": f.PlatformName,
		"RowNumber":    f.RowNumber,
		"OrderID":      f.OrderID,
		"Error":        f.Error,
		"RawRow":       f.RawRow,
	}
	stmt := db.failedRowInsertStmt
	if err := stmt.verifyArgs(args); err != nil {
		return err
	}
	_, err := stmt.ExecContext(ctx, args)
	db.logQuery("FailedRowInsert", stmt, args, err)
	if err != nil {
		return fmt.Errorf("failed row insert error for row %d: %w", f.RowNumber, err)
	}
	return nil
}

// FailedRowsGet returns the failed rows recorded for a batch, in row order.
func (db *DB) FailedRowsGet(ctx context.Context, batchID string) ([]FailedRow, error) {
	query := `
	SELECT
		batch_id, source, platform_name, row_number
		,COALESCE(order_id, '') AS order_id, error, raw_row
	FROM failed_rows
	WHERE batch_id = ?
	ORDER BY row_number`
	var rows []FailedRow
	if err := db.SelectContext(ctx, &rows, query, batchID); err != nil {
		return nil, fmt.Errorf("failed rows select error: %w", err)
	}
	return rows, nil
}

// dateArg formats an optional date for storage.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}
