// Package platform holds the schema registry of supported marketplace platforms and
// detects which platform produced a dataset.
//
// Each platform export shares a common core of columns and adds two platform-specific
// extras. The registry maps every source column to a canonical Field.
package platform

import (
	"fmt"
	"sort"
)

// Name is a supported platform identifier.
type Name string

const (
	Amazon   Name = "AMAZON"
	Flipkart Name = "FLIPKART"
	Meesho   Name = "MEESHO"
)

// Field is a canonical field name shared by all platforms.
type Field string

// Common core fields.
const (
	OrderID         Field = "order_id"
	ProductID       Field = "product_id"
	ProductName     Field = "product_name"
	Category        Field = "category"
	QuantitySold    Field = "quantity_sold"
	SellingPrice    Field = "selling_price"
	DateOfSale      Field = "date_of_sale"
	CustomerID      Field = "customer_id"
	CustomerName    Field = "customer_name"
	ContactEmail    Field = "contact_email"
	PhoneNumber     Field = "phone_number"
	DeliveryAddress Field = "delivery_address"
	DeliveryDate    Field = "delivery_date"
	DeliveryStatus  Field = "delivery_status"
	PlatformName    Field = "platform"
)

// Platform-specific and optional fields.
const (
	PrimeDelivery        Field = "prime_delivery"
	WarehouseLocation    Field = "warehouse_location"
	CouponUsed           Field = "coupon_used"
	ReturnWindow         Field = "return_window"
	ResellerName         Field = "reseller_name"
	CommissionPercentage Field = "commission_percentage"
	DeliveryPartner      Field = "delivery_partner"
)

// PlatformColumn is the source column declaring the platform of each row.
const PlatformColumn = "Platform"

// ColumnMapping maps a source column to a canonical field.
type ColumnMapping struct {
	Column string
	Field  Field
}

// Schema is the ordered column mapping for a platform.
type Schema struct {
	Platform Name
	Columns  []ColumnMapping
	Extras   []Field
}

// Fields returns the canonical fields of the schema in mapping order.
func (s Schema) Fields() []Field {
	fields := make([]Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = c.Field
	}
	return fields
}

// Has reports whether the schema maps a column to field.
func (s Schema) Has(field Field) bool {
	for _, c := range s.Columns {
		if c.Field == field {
			return true
		}
	}
	return false
}

// UnsupportedPlatformError reports a platform identifier that is not in the registry.
type UnsupportedPlatformError struct {
	Platform string
}

// Error fulfills the error interface. The text is part of the ingestion result
// contract.
func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("Unsupported platform: %s", e.Platform)
}

// coreColumns are shared by every platform's export.
var coreColumns = []ColumnMapping{
	{"OrderID", OrderID},
	{"ProductID", ProductID},
	{"ProductName", ProductName},
	{"Category", Category},
	{"QuantitySold", QuantitySold},
	{"SellingPrice", SellingPrice},
	{"DateOfSale", DateOfSale},
	{"CustomerID", CustomerID},
	{"CustomerName", CustomerName},
	{"ContactEmail", ContactEmail},
	{"PhoneNumber", PhoneNumber},
	{"DeliveryAddress", DeliveryAddress},
	{"DeliveryDate", DeliveryDate},
	{"DeliveryStatus", DeliveryStatus},
	{PlatformColumn, PlatformName},
}

// optionalColumns are read when present in any platform's export.
var optionalColumns = []ColumnMapping{
	{"DeliveryPartner", DeliveryPartner},
}

// extraColumns are the platform-specific columns.
var extraColumns = map[Name][]ColumnMapping{
	Amazon: {
		{"PrimeDelivery", PrimeDelivery},
		{"WarehouseLocation", WarehouseLocation},
	},
	Flipkart: {
		{"CouponUsed", CouponUsed},
		{"ReturnWindow", ReturnWindow},
	},
	Meesho: {
		{"ResellerName", ResellerName},
		{"CommissionPercentage", CommissionPercentage},
	},
}

// Registry is an immutable set of platform schemas. The zero value is empty; use
// NewRegistry.
type Registry struct {
	schemas map[Name]Schema
}

// NewRegistry builds the registry of supported platforms. Each call returns an
// independent copy, so callers cannot alter another's view.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[Name]Schema, len(extraColumns))}
	for name, extras := range extraColumns {
		columns := make([]ColumnMapping, 0, len(coreColumns)+len(extras)+len(optionalColumns))
		columns = append(columns, coreColumns...)
		columns = append(columns, extras...)
		columns = append(columns, optionalColumns...)

		extraFields := make([]Field, len(extras))
		for i, e := range extras {
			extraFields[i] = e.Field
		}
		r.schemas[name] = Schema{
			Platform: name,
			Columns:  columns,
			Extras:   extraFields,
		}
	}
	return r
}

// Lookup returns the schema for an uppercase platform identifier.
func (r *Registry) Lookup(id string) (Schema, error) {
	s, ok := r.schemas[Name(id)]
	if !ok {
		return Schema{}, &UnsupportedPlatformError{Platform: id}
	}
	// Copy the slices so the registry cannot be mutated through the result.
	s.Columns = append([]ColumnMapping(nil), s.Columns...)
	s.Extras = append([]Field(nil), s.Extras...)
	return s, nil
}

// Platforms returns the supported platform identifiers, sorted.
func (r *Registry) Platforms() []Name {
	names := make([]Name, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// CoreFields returns the canonical fields every platform maps.
func CoreFields() []Field {
	fields := make([]Field, len(coreColumns))
	for i, c := range coreColumns {
		fields[i] = c.Field
	}
	return fields
}
