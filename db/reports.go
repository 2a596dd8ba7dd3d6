package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReportFilter narrows the orders considered by a report. Zero values match all
// orders. Dates are inclusive and compared with the date of sale.
type ReportFilter struct {
	DateFrom       time.Time
	DateTo         time.Time
	Category       string
	DeliveryStatus string
	Platform       string
}

// args returns the named statement arguments for the filter.
func (f ReportFilter) args() map[string]any {
	date := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	}
	return map[string]any{
		"DateFrom":       date(f.DateFrom),
		"DateTo":         date(f.DateTo),
		"Category":       f.Category,
		"DeliveryStatus": f.DeliveryStatus,
		"PlatformName":   f.Platform,
	}
}

// MonthlySales is the quantity sold in a month, the month being its first day.
type MonthlySales struct {
	Month         string `db:"month" json:"month"`
	TotalQuantity int64  `db:"total_quantity" json:"total_quantity"`
}

// MonthlyRevenue is the quantity sold and revenue in a month.
type MonthlyRevenue struct {
	Month         string          `db:"month" json:"month"`
	TotalQuantity int64           `db:"total_quantity" json:"total_quantity"`
	TotalRevenue  decimal.Decimal `db:"total_revenue" json:"total_revenue"`
}

// Summary reports headline metrics.
type Summary struct {
	TotalRevenue             decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	TotalOrders              int64           `db:"total_orders" json:"total_orders"`
	TotalProductsSold        int64           `db:"total_products_sold" json:"total_products_sold"`
	CancelledOrders          int64           `db:"cancelled_orders" json:"cancelled_orders"`
	CancelledOrderPercentage decimal.Decimal `db:"-" json:"canceled_order_percentage"`
}

// OrderExport is a flattened order for csv export.
type OrderExport struct {
	OrderID         string          `db:"order_id"`
	ProductID       string          `db:"product_id"`
	ProductName     string          `db:"product_name"`
	Category        string          `db:"category"`
	QuantitySold    int64           `db:"quantity_sold"`
	SellingPrice    decimal.Decimal `db:"selling_price"`
	DateOfSale      string          `db:"date_of_sale"`
	CustomerID      string          `db:"customer_id"`
	PlatformName    string          `db:"platform_name"`
	CouponUsed      bool            `db:"coupon_used"`
	ReturnWindow    *int64          `db:"return_window"`
	DeliveryAddress string          `db:"delivery_address"`
	DeliveryDate    *string         `db:"delivery_date"`
	DeliveryStatus  string          `db:"delivery_status"`
}

// ExportHeader is the header row matching OrderExport.Record.
var ExportHeader = []string{
	"order_id", "product_id", "product_name", "category", "quantity_sold",
	"selling_price", "date_of_sale", "customer_id", "platform_name", "coupon_used",
	"return_window", "delivery_address", "delivery_date", "delivery_status",
}

// Record returns the export as csv fields in ExportHeader order.
func (o OrderExport) Record() []string {
	returnWindow, deliveryDate := "", ""
	if o.ReturnWindow != nil {
		returnWindow = fmt.Sprint(*o.ReturnWindow)
	}
	if o.DeliveryDate != nil {
		deliveryDate = *o.DeliveryDate
	}
	return []string{
		o.OrderID, o.ProductID, o.ProductName, o.Category, fmt.Sprint(o.QuantitySold),
		o.SellingPrice.StringFixed(2), o.DateOfSale, o.CustomerID, o.PlatformName,
		fmt.Sprint(o.CouponUsed), returnWindow, o.DeliveryAddress, deliveryDate,
		o.DeliveryStatus,
	}
}

// selectReport runs a filtered report statement into dest.
func (db *DB) selectReport(ctx context.Context, name string, stmt *parameterizedStmt, dest any, args map[string]any) error {
	if err := stmt.verifyArgs(args); err != nil {
		return err
	}
	err := stmt.SelectContext(ctx, dest, args)
	db.logQuery(name, stmt, args, err)
	return err
}

// MonthlySalesGet returns the quantity sold per month. sql.ErrNoRows is returned if
// no orders match.
func (db *DB) MonthlySalesGet(ctx context.Context, f ReportFilter) ([]MonthlySales, error) {
	var sales []MonthlySales
	if err := db.selectReport(ctx, "MonthlySalesGet", db.monthlySalesStmt, &sales, f.args()); err != nil {
		return nil, fmt.Errorf("monthly sales select error: %w", err)
	}
	if len(sales) == 0 {
		return nil, sql.ErrNoRows
	}
	return sales, nil
}

// MonthlyRevenueGet returns the quantity sold and revenue per month. sql.ErrNoRows is
// returned if no orders match.
func (db *DB) MonthlyRevenueGet(ctx context.Context, f ReportFilter) ([]MonthlyRevenue, error) {
	var revenue []MonthlyRevenue
	if err := db.selectReport(ctx, "MonthlyRevenueGet", db.monthlyRevenueStmt, &revenue, f.args()); err != nil {
		return nil, fmt.Errorf("monthly revenue select error: %w", err)
	}
	if len(revenue) == 0 {
		return nil, sql.ErrNoRows
	}
	return revenue, nil
}

// SummaryGet returns the summary metrics. With no matching orders all metrics are
// zero.
func (db *DB) SummaryGet(ctx context.Context, f ReportFilter) (Summary, error) {
	var summary Summary
	args := f.args()
	stmt := db.summaryStmt
	if err := stmt.verifyArgs(args); err != nil {
		return summary, err
	}
	err := stmt.GetContext(ctx, &summary, args)
	db.logQuery("SummaryGet", stmt, args, err)
	if err != nil {
		return summary, fmt.Errorf("summary select error: %w", err)
	}
	if summary.TotalOrders > 0 {
		summary.CancelledOrderPercentage = decimal.NewFromInt(summary.CancelledOrders).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(summary.TotalOrders), 2)
	}
	return summary, nil
}

// CategoriesGet returns the distinct order categories, optionally for one platform.
func (db *DB) CategoriesGet(ctx context.Context, platform string) ([]string, error) {
	var categories []string
	args := map[string]any{"PlatformName": platform}
	if err := db.selectReport(ctx, "CategoriesGet", db.categoriesStmt, &categories, args); err != nil {
		return nil, fmt.Errorf("categories select error: %w", err)
	}
	if len(categories) == 0 {
		return nil, sql.ErrNoRows
	}
	return categories, nil
}

// OrdersExportGet returns the filtered orders for export.
func (db *DB) OrdersExportGet(ctx context.Context, f ReportFilter) ([]OrderExport, error) {
	var orders []OrderExport
	if err := db.selectReport(ctx, "OrdersExportGet", db.ordersExportStmt, &orders, f.args()); err != nil {
		return nil, fmt.Errorf("orders export select error: %w", err)
	}
	if len(orders) == 0 {
		return nil, sql.ErrNoRows
	}
	return orders, nil
}
