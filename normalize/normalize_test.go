package normalize

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
	"github.com/shopspring/decimal"
)

func ptrStr(s string) *string { return &s }

func ptrBool(b bool) *bool { return &b }

func ptrInt(i int64) *int64 { return &i }

func ptrTime(ti time.Time) *time.Time { return &ti }

func TestDate(t *testing.T) {

	jan5 := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  *time.Time
	}{
		{"2024-01-05", ptrTime(jan5)},
		{"2024-01-05 13:45:10", ptrTime(jan5)},
		{"2024-01-05T13:45:10Z", ptrTime(jan5)},
		{"01/05/2024", ptrTime(jan5)},
		{"1/5/2024", ptrTime(jan5)},
		{"5 Jan 2024", ptrTime(jan5)},
		{"Jan 5, 2024", ptrTime(jan5)},
		{"2024-1-5", ptrTime(jan5)},
		{"2024/1/5", ptrTime(jan5)},
		{"5 January 2024", ptrTime(jan5)},
		{"2024-01-05 10:00:00+05:30", ptrTime(jan5)},
		{"01/05/24", ptrTime(jan5)},
		{"2024-01-05 00:12:00 +0000 GMT", ptrTime(jan5)},
		{"", nil},
		{"not a date", nil},
		{"2024-13-45", nil},
	}

	for ii, tt := range tests {
		t.Run(fmt.Sprintf("test_%d", ii), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Date(tt.input)); diff != "" {
				t.Errorf("Date(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestQuantityAndPrice(t *testing.T) {

	quantities := []struct {
		input string
		want  int64
	}{
		{"3", 3},
		{" 4 ", 4},
		{"2.0", 2},
		{"", 0},
		{"three", 0},
		{"-1", -1},
		{"1e3", 1000},
		{"99999999999999999999", 0},
		{"-99999999999999999999", 0},
		{"1e40000000", 0},
		{"1e400000000", 0},
		{"1e-40000000", 0},
	}
	for _, tt := range quantities {
		if got := Quantity(tt.input); got != tt.want {
			t.Errorf("Quantity(%q) got %d want %d", tt.input, got, tt.want)
		}
	}

	prices := []struct {
		input string
		want  string
	}{
		{"499.99", "499.99"},
		{"1,299.5", "1299.5"},
		{"₹250", "250"},
		{"10.005", "10.01"},
		{"", "0"},
		{"free", "0"},
		{"1e40000000", "0"},
		{"1e-40000000", "0"},
	}
	for _, tt := range prices {
		if got := Price(tt.input); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Price(%q) got %s want %s", tt.input, got, tt.want)
		}
	}
}

func TestBool(t *testing.T) {

	tests := []struct {
		input string
		want  *bool
	}{
		{"True", ptrBool(true)},
		{"yes", ptrBool(true)},
		{"1", ptrBool(true)},
		{"FALSE", ptrBool(false)},
		{"n", ptrBool(false)},
		{"", nil},
		{"maybe", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Bool(tt.input)); diff != "" {
			t.Errorf("Bool(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestNormalize(t *testing.T) {

	reg := platform.NewRegistry()
	schema, err := reg.Lookup("FLIPKART")
	if err != nil {
		t.Fatal(err)
	}

	ds := &source.Dataset{
		Header: []string{
			"OrderID", "ProductID", "ProductName", "Category", "QuantitySold",
			"SellingPrice", "DateOfSale", "CustomerID", "CustomerName", "ContactEmail",
			"PhoneNumber", "DeliveryAddress", "DeliveryDate", "DeliveryStatus", "Platform",
			"CouponUsed", "ReturnWindow", "Unmapped",
		},
		Records: [][]string{
			{
				"FK-1", "P-1", "Kettle", "Kitchen", "2", "799.00", "2024-03-01", "00042",
				"Asha", "asha@example.com", "+91 98765 43210", "12 MG Road", "2024-03-04",
				"Delivered", "Flipkart", "Yes", "30", "ignored",
			},
			{
				"FK-2", "P-2", "Toaster", "Kitchen", "lots", "", "31/31/2024", "7",
				"Ravi", "", "", "3 Park St", "", "Cancelled", "Flipkart", "", "", "",
			},
		},
	}

	rows := New(schema).Normalize(ds)
	if got, want := len(rows), 2; got != want {
		t.Fatalf("got %d rows want %d", got, want)
	}

	saleDate := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	deliveryDate := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	want := []Row{
		{
			Number:          1,
			Platform:        platform.Flipkart,
			OrderID:         "FK-1",
			ProductID:       "P-1",
			ProductName:     "Kettle",
			Category:        "Kitchen",
			Quantity:        2,
			Price:           decimal.RequireFromString("799"),
			SaleDate:        &saleDate,
			CustomerID:      "00042",
			CustomerName:    "Asha",
			ContactEmail:    ptrStr("asha@example.com"),
			PhoneNumber:     ptrStr("+91 98765 43210"),
			DeliveryAddress: "12 MG Road",
			DeliveryDate:    &deliveryDate,
			DeliveryStatus:  "Delivered",
			CouponUsed:      ptrBool(true),
			ReturnWindow:    ptrInt(30),
		},
		{
			Number:          2,
			Platform:        platform.Flipkart,
			OrderID:         "FK-2",
			ProductID:       "P-2",
			ProductName:     "Toaster",
			Category:        "Kitchen",
			Quantity:        0,
			Price:           decimal.Zero,
			CustomerID:      "7",
			CustomerName:    "Ravi",
			DeliveryAddress: "3 Park St",
			DeliveryStatus:  "Cancelled",
		},
	}

	opts := cmp.Options{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	}
	for i := range rows {
		if rows[i].Raw["Unmapped"] != ds.Records[i][17] {
			t.Errorf("row %d raw record not kept", i)
		}
		rows[i].Raw = nil
	}
	if diff := cmp.Diff(want, rows, opts); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeMissingColumns(t *testing.T) {

	reg := platform.NewRegistry()
	schema, err := reg.Lookup("MEESHO")
	if err != nil {
		t.Fatal(err)
	}

	ds := &source.Dataset{
		Header:  []string{"orderid", "Platform", "CommissionPercentage", "ResellerName"},
		Records: [][]string{{"M-1", "MEESHO", "12.5%", "Shop One"}},
	}

	rows := New(schema).Normalize(ds)
	r := rows[0]
	if r.OrderID != "M-1" {
		t.Errorf("case-insensitive header not mapped, got %q", r.OrderID)
	}
	if r.SaleDate != nil || r.ContactEmail != nil || r.CouponUsed != nil {
		t.Error("absent columns should leave fields unset")
	}
	if r.CommissionPercentage == nil || !r.CommissionPercentage.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("commission got %v want 12.5", r.CommissionPercentage)
	}
	if r.ResellerName == nil || *r.ResellerName != "Shop One" {
		t.Errorf("reseller got %v", r.ResellerName)
	}
}

func TestRowDefaults(t *testing.T) {

	var r Row
	if r.CouponUsedOrDefault() || r.ReturnWindowOrDefault() != 0 {
		t.Error("unset extras should resolve to false and zero")
	}

	r.CouponUsed = ptrBool(true)
	r.ReturnWindow = ptrInt(14)
	if !r.CouponUsedOrDefault() || r.ReturnWindowOrDefault() != 14 {
		t.Errorf("supplied extras not kept: %v %d", r.CouponUsedOrDefault(), r.ReturnWindowOrDefault())
	}
}

func TestOptIntBounds(t *testing.T) {
	if got := optInt("30"); got == nil || *got != 30 {
		t.Errorf("optInt(30) got %v", got)
	}
	for _, s := range []string{"", "x", "99999999999999999999", "1e40000000"} {
		if got := optInt(s); got != nil {
			t.Errorf("optInt(%q) got %d want nil", s, *got)
		}
	}
}
