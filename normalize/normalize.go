// Package normalize renames platform columns to canonical fields and coerces their
// values into a Row.
//
// Normalization never fails: unparsable dates become nil, unparsable quantities and
// prices become zero and optional fields that are absent or empty are nil. Whether a
// row is complete enough to store is decided when it is written.
package normalize

import (
	"strings"
	"time"

	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
	"github.com/shopspring/decimal"
)

// Row is a canonical order row. Pointer fields are optional: nil means the source did
// not supply a usable value.
type Row struct {
	Number int // 1-based data row number in the source
	Raw    map[string]string

	Platform platform.Name

	OrderID     string
	ProductID   string
	ProductName string
	Category    string
	Quantity    int64
	Price       decimal.Decimal
	SaleDate    *time.Time

	CustomerID   string
	CustomerName string
	ContactEmail *string
	PhoneNumber  *string

	DeliveryAddress string
	DeliveryDate    *time.Time
	DeliveryStatus  string
	DeliveryPartner *string

	// Platform-specific extras.
	PrimeDelivery        *bool
	WarehouseLocation    *string
	CouponUsed           *bool
	ReturnWindow         *int64
	ResellerName         *string
	CommissionPercentage *decimal.Decimal
}

// Normalizer maps datasets of one platform schema into Rows.
type Normalizer struct {
	schema platform.Schema
}

// New returns a Normalizer for the schema.
func New(schema platform.Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

// Normalize converts every record of the dataset. Columns that the schema does not map
// are dropped; mapped columns missing from the dataset leave their field unset.
func (n *Normalizer) Normalize(ds *source.Dataset) []Row {
	index := make(map[platform.Field]int, len(n.schema.Columns))
	for _, c := range n.schema.Columns {
		if i, ok := ds.Column(c.Column); ok {
			index[c.Field] = i
		}
	}

	rows := make([]Row, ds.Len())
	for r := range rows {
		get := func(f platform.Field) string {
			i, ok := index[f]
			if !ok {
				return ""
			}
			return strings.TrimSpace(ds.Value(r, i))
		}
		rows[r] = n.row(r, get)
		rows[r].Raw = ds.RecordMap(r)
	}
	return rows
}

// row builds a single Row from a field getter.
func (n *Normalizer) row(r int, get func(platform.Field) string) Row {
	return Row{
		Number:   r + 1,
		Platform: n.schema.Platform,

		OrderID:     get(platform.OrderID),
		ProductID:   get(platform.ProductID),
		ProductName: get(platform.ProductName),
		Category:    get(platform.Category),
		Quantity:    Quantity(get(platform.QuantitySold)),
		Price:       Price(get(platform.SellingPrice)),
		SaleDate:    Date(get(platform.DateOfSale)),

		CustomerID:   get(platform.CustomerID),
		CustomerName: get(platform.CustomerName),
		ContactEmail: optString(get(platform.ContactEmail)),
		PhoneNumber:  optString(get(platform.PhoneNumber)),

		DeliveryAddress: get(platform.DeliveryAddress),
		DeliveryDate:    Date(get(platform.DeliveryDate)),
		DeliveryStatus:  get(platform.DeliveryStatus),
		DeliveryPartner: optString(get(platform.DeliveryPartner)),

		PrimeDelivery:        Bool(get(platform.PrimeDelivery)),
		WarehouseLocation:    optString(get(platform.WarehouseLocation)),
		CouponUsed:           Bool(get(platform.CouponUsed)),
		ReturnWindow:         optInt(get(platform.ReturnWindow)),
		ResellerName:         optString(get(platform.ResellerName)),
		CommissionPercentage: optDecimal(strings.TrimSuffix(get(platform.CommissionPercentage), "%")),
	}
}

// optString returns nil for an empty string.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optInt returns nil unless s holds a number within the int64 range.
func optInt(s string) *int64 {
	i, ok := parseInt(s)
	if !ok {
		return nil
	}
	return &i
}

// optDecimal returns nil for a missing or unparsable decimal.
func optDecimal(s string) *decimal.Decimal {
	d, ok := parseDecimal(s)
	if !ok {
		return nil
	}
	return &d
}

// CouponUsedOrDefault returns the coupon flag, or false if it was not supplied.
func (r Row) CouponUsedOrDefault() bool {
	return r.CouponUsed != nil && *r.CouponUsed
}

// ReturnWindowOrDefault returns the return window in days, or zero if it was not
// supplied.
func (r Row) ReturnWindowOrDefault() int64 {
	if r.ReturnWindow == nil {
		return 0
	}
	return *r.ReturnWindow
}
