package web

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/platform"
)

func newRequest(t *testing.T, urlString string) *http.Request {
	t.Helper()
	r, err := http.NewRequest("GET", urlString, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// TestReportForm tests the ReportForm decoding and validation.
func TestReportForm(t *testing.T) {

	registry := platform.NewRegistry()

	tests := []struct {
		name           string
		inputURL       string
		filter         db.ReportFilter
		page           int
		validationErrs map[string]string
	}{
		{
			name:           "default",
			inputURL:       "http://127.0.0.1:8000/api/monthly_sales/",
			page:           1,
			validationErrs: map[string]string{},
		},
		{
			name:     "all filters",
			inputURL: "http://127.0.0.1:8000/api/monthly_sales/?start_date=2024-01-01&end_date=2024-03-31&category=+Books+&delivery_status=Delivered&platform=meesho&page=2&unknown=x",
			filter: db.ReportFilter{
				DateFrom:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
				DateTo:         time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
				Category:       "Books",
				DeliveryStatus: "Delivered",
				Platform:       "MEESHO",
			},
			page:           2,
			validationErrs: map[string]string{},
		},
		{
			name:     "end before start",
			inputURL: "http://127.0.0.1:8000/api/monthly_sales/?start_date=2024-06-01&end_date=2024-05-01",
			filter: db.ReportFilter{
				DateFrom: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
				DateTo:   time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
			},
			page: 1,
			validationErrs: map[string]string{
				"end_date": "End date cannot be before the start date.",
			},
		},
		{
			name:     "bad date and platform",
			inputURL: "http://127.0.0.1:8000/api/monthly_sales/?start_date=yesterday&platform=ebay&page=0",
			filter:   db.ReportFilter{Platform: "EBAY"},
			page:     1,
			validationErrs: map[string]string{
				"start_date": "Invalid start_date value provided.",
				"platform":   `Unsupported platform "EBAY".`,
			},
		},
		{
			name:     "long category",
			inputURL: "http://127.0.0.1:8000/api/monthly_sales/?category=" + strings.Repeat("x", maxFilterLength+1),
			filter:   db.ReportFilter{Category: strings.Repeat("x", maxFilterLength+1)},
			page:     1,
			validationErrs: map[string]string{
				"category": "Category is too long.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := NewReportForm()
			validator := NewValidator()
			if err := DecodeURLParams(newRequest(t, tt.inputURL), form, validator); err != nil {
				t.Fatal(err)
			}
			form.Validate(validator, registry)

			if diff := cmp.Diff(tt.filter, form.Filter()); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
			if got, want := form.Page, tt.page; got != want {
				t.Errorf("got page %d want %d", got, want)
			}
			if diff := cmp.Diff(tt.validationErrs, validator.Errors); diff != "" {
				t.Errorf("validation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidMuxVars(t *testing.T) {
	if _, err := validMuxVars(map[string]string{"batch": "b-1"}, "batch"); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := validMuxVars(map[string]string{}, "batch"); err == nil {
		t.Error("expected an error for a missing parameter")
	}
}

func TestIngestFormValidate(t *testing.T) {
	tests := []struct {
		csvURL         string
		validationErrs map[string]string
	}{
		{"https://drive.google.com/file/d/abc/view?usp=sharing", map[string]string{}},
		{"http://example.com/orders.csv", map[string]string{}},
		{"", map[string]string{"csv_url": "A csv_url must be provided."}},
		{"/etc/orders.csv", map[string]string{"csv_url": "The csv_url must be an http or https url."}},
		{"file:///etc/orders.csv", map[string]string{"csv_url": "The csv_url must be an http or https url."}},
	}
	for _, tt := range tests {
		validator := NewValidator()
		form := IngestForm{CSVURL: tt.csvURL}
		form.Validate(validator)
		if diff := cmp.Diff(tt.validationErrs, validator.Errors); diff != "" {
			t.Errorf("%q validation mismatch (-want +got):\n%s", tt.csvURL, diff)
		}
	}
}
