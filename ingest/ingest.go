// Package ingest runs an order ingestion batch: the dataset is retrieved, its platform
// detected and its rows normalized, then each row is written in its own transaction.
//
// A failing row is rolled back and counted without affecting the rows before or after
// it. Only a failure to retrieve the dataset or detect its platform fails the batch.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/normalize"
	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
)

// PhoneMaxLength is the maximum stored length of a phone number in characters.
const PhoneMaxLength = 20

// ErrMissingField is returned for a row lacking a required value.
var ErrMissingField = errors.New("missing required field")

// Ingester runs ingestion batches against a database.
type Ingester struct {
	db           *db.DB
	registry     *platform.Registry
	fetcher      *source.Fetcher
	log          *slog.Logger
	metrics      *Metrics
	recordFailed bool
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithMetrics records batch metrics.
func WithMetrics(m *Metrics) Option {
	return func(in *Ingester) { in.metrics = m }
}

// WithFailedRowAudit records failed rows in the failed_rows table.
func WithFailedRowAudit(enabled bool) Option {
	return func(in *Ingester) { in.recordFailed = enabled }
}

// New returns an Ingester. If fetcher or logger are nil defaults are used.
func New(database *db.DB, registry *platform.Registry, fetcher *source.Fetcher, logger *slog.Logger, opts ...Option) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = source.NewFetcher(nil, logger)
	}
	in := &Ingester{
		db:       database,
		registry: registry,
		fetcher:  fetcher,
		log:      logger,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Run retrieves the dataset at locator and ingests it.
func (in *Ingester) Run(ctx context.Context, locator string) Result {
	start := time.Now()
	ds, err := in.fetcher.Fetch(ctx, locator)
	if err != nil {
		in.log.Error("dataset retrieval failed", "source", locator, "error", err)
		result := errorResult(uuid.NewString(), err)
		in.metrics.RecordBatch(result, time.Since(start))
		return result
	}
	return in.ingest(ctx, locator, ds, start)
}

// RunDataset ingests an already retrieved dataset. name identifies the source in logs
// and failed row records.
func (in *Ingester) RunDataset(ctx context.Context, name string, ds *source.Dataset) Result {
	return in.ingest(ctx, name, ds, time.Now())
}

// ingest runs the row loop over the dataset.
func (in *Ingester) ingest(ctx context.Context, name string, ds *source.Dataset, start time.Time) Result {

	batchID := uuid.NewString()
	log := in.log.With("batch_id", batchID, "source", name)

	schema, err := in.registry.Detect(ds)
	if err != nil {
		log.Error("platform detection failed", "error", err)
		result := errorResult(batchID, err)
		in.metrics.RecordBatch(result, time.Since(start))
		return result
	}
	log = log.With("platform", schema.Platform)

	rows := normalize.New(schema).Normalize(ds)
	var succeeded, failed int
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			log.Warn("batch stopped", "rows_remaining", len(rows)-succeeded-failed, "error", err)
			break
		}
		rr := in.processRow(ctx, row)
		if rr.Err == nil {
			succeeded++
			continue
		}
		failed++
		log.Warn("row failed", "row", rr.Row, "order_id", rr.OrderID, "error", rr.Err)
		if in.recordFailed {
			in.recordFailedRow(ctx, batchID, name, row, rr)
		}
	}

	result := okResult(batchID, string(schema.Platform), len(rows), succeeded, failed)
	log.Info(result.Message, "skipped", result.Skipped, "duration", time.Since(start))
	in.metrics.RecordBatch(result, time.Since(start))
	return result
}

// processRow writes the customer, platform, order and delivery of a row in a single
// transaction.
func (in *Ingester) processRow(ctx context.Context, row normalize.Row) RowResult {

	rr := RowResult{Row: row.Number, OrderID: row.OrderID}
	if err := checkRequired(row); err != nil {
		rr.Err = err
		return rr
	}

	platformName := string(row.Platform)
	customer := db.Customer{
		CustomerID:   CustomerKey(row.Platform, row.CustomerID),
		CustomerName: row.CustomerName,
		ContactEmail: row.ContactEmail,
		PhoneNumber:  TruncatePhone(row.PhoneNumber),
	}

	rr.Err = in.db.InRowTx(ctx, func(rt *db.RowTx) error {
		if _, err := rt.CustomerInsert(ctx, customer); err != nil {
			return err
		}
		if err := rt.PlatformInsert(ctx, platformName); err != nil {
			return err
		}
		platformID, err := rt.PlatformID(ctx, platformName)
		if err != nil {
			return err
		}
		err = rt.OrderInsert(ctx, db.Order{
			OrderID:              row.OrderID,
			ProductID:            row.ProductID,
			ProductName:          row.ProductName,
			Category:             row.Category,
			QuantitySold:         row.Quantity,
			SellingPrice:         row.Price,
			DateOfSale:           row.SaleDate,
			CustomerID:           customer.CustomerID,
			PlatformID:           platformID,
			CouponUsed:           row.CouponUsedOrDefault(),
			ReturnWindow:         row.ReturnWindowOrDefault(),
			PrimeDelivery:        row.PrimeDelivery,
			WarehouseLocation:    row.WarehouseLocation,
			ResellerName:         row.ResellerName,
			CommissionPercentage: row.CommissionPercentage,
		})
		if err != nil {
			return err
		}
		return rt.DeliveryInsert(ctx, db.Delivery{
			OrderID:         row.OrderID,
			DeliveryAddress: row.DeliveryAddress,
			DeliveryDate:    row.DeliveryDate,
			DeliveryStatus:  row.DeliveryStatus,
			DeliveryPartner: row.DeliveryPartner,
		})
	})
	return rr
}

// recordFailedRow writes the audit record of a failed row. The write outlives a
// cancelled batch context.
func (in *Ingester) recordFailedRow(ctx context.Context, batchID, name string, row normalize.Row, rr RowResult) {
	raw, err := json.Marshal(row.Raw)
	if err != nil {
		raw = []byte("{}")
	}
	err = in.db.FailedRowInsert(context.WithoutCancel(ctx), db.FailedRow{
		BatchID:      batchID,
		Source:       name,
		PlatformName: string(row.Platform),
		RowNumber:    rr.Row,
		OrderID:      rr.OrderID,
		Error:        rr.Err.Error(),
		RawRow:       string(raw),
	})
	if err != nil {
		in.log.Error("failed row not recorded", "row", rr.Row, "error", err)
	}
}

// checkRequired reports the required values missing from a row.
func checkRequired(row normalize.Row) error {
	var missing []string
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"OrderID", row.OrderID != ""},
		{"ProductID", row.ProductID != ""},
		{"ProductName", row.ProductName != ""},
		{"Category", row.Category != ""},
		{"DateOfSale", row.SaleDate != nil},
		{"CustomerID", row.CustomerID != ""},
		{"CustomerName", row.CustomerName != ""},
		{"DeliveryAddress", row.DeliveryAddress != ""},
		{"DeliveryStatus", row.DeliveryStatus != ""},
	} {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// CustomerKey returns the platform-qualified customer id.
func CustomerKey(p platform.Name, customerID string) string {
	return fmt.Sprintf("%s_%s", p, customerID)
}

// TruncatePhone shortens a phone number to PhoneMaxLength characters.
func TruncatePhone(phone *string) *string {
	if phone == nil || utf8.RuneCountInString(*phone) <= PhoneMaxLength {
		return phone
	}
	p := string([]rune(*phone)[:PhoneMaxLength])
	return &p
}
