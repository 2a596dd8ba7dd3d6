package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
)

// maxFilterLength is the longest accepted text filter.
const maxFilterLength = 255

// maxIngestBodyBytes limits the size of an ingest request body.
const maxIngestBodyBytes = 1 << 16

// ------------------------------------------------------------------------------
// Helpers
// ------------------------------------------------------------------------------

// Validator holds a map of validation errors, keyed by the form field name.
type Validator struct {
	Errors map[string]string `json:"errors"`
}

// NewValidator creates a new, initialized Validator.
func NewValidator() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid returns true if the Errors map is empty.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError adds an error message to the map for a given field if one
// doesn't already exist for that field.
func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

// Check is a helper for conditional validation. If `ok` is false, it
// calls AddError with the provided key and message.
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// FieldError is a helper to check if the specified field has triggered
// an error.
func (v *Validator) FieldError(field string) bool {
	_, ok := v.Errors[field]
	return ok
}

// ------------------------------------------------------------------------------
// URL parameter parsing, using gorilla mux.Vars
// ------------------------------------------------------------------------------

// validMuxVars checks that the required keys are in the url route variable parameters,
// such as the `batch` in
//
//	"/api/failed_rows/{batch:[A-Za-z0-9-]+}"
func validMuxVars(vars map[string]string, keys ...string) (map[string]string, error) {
	for _, key := range keys {
		if _, ok := vars[key]; !ok {
			return nil, fmt.Errorf("parameter %q missing", key)
		}
	}
	return vars, nil
}

// ------------------------------------------------------------------------------
// Forms
// ------------------------------------------------------------------------------

// ReportForm represents the URL query parameter filters shared by the report
// endpoints. Empty values match all orders.
type ReportForm struct {
	DateFrom       time.Time `schema:"start_date"`
	DateTo         time.Time `schema:"end_date"`
	Category       string    `schema:"category"`
	DeliveryStatus string    `schema:"delivery_status"`
	Platform       string    `schema:"platform"`
	Page           int       `schema:"page"`
}

// NewReportForm creates a ReportForm with defaults.
func NewReportForm() *ReportForm {
	return &ReportForm{
		Page: 1, // 1-based pagination.
	}
}

// Validate checks ReportForm fields against the registry of supported platforms and
// populates Validator with any errors. The platform is normalised to upper case.
func (f *ReportForm) Validate(v *Validator, registry *platform.Registry) {

	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() {
		v.Check(!f.DateTo.Before(f.DateFrom), "end_date", "End date cannot be before the start date.")
	}

	f.Category = strings.TrimSpace(f.Category)
	f.DeliveryStatus = strings.TrimSpace(f.DeliveryStatus)
	v.Check(len(f.Category) <= maxFilterLength, "category", "Category is too long.")
	v.Check(len(f.DeliveryStatus) <= maxFilterLength, "delivery_status", "Delivery status is too long.")

	f.Platform = strings.ToUpper(strings.TrimSpace(f.Platform))
	if f.Platform != "" {
		_, err := registry.Lookup(f.Platform)
		v.Check(err == nil, "platform", fmt.Sprintf("Unsupported platform %q.", f.Platform))
	}

	if f.Page < 1 {
		f.Page = 1
	}
}

// Filter returns the database report filter for the form.
func (f *ReportForm) Filter() db.ReportFilter {
	return db.ReportFilter{
		DateFrom:       f.DateFrom,
		DateTo:         f.DateTo,
		Category:       f.Category,
		DeliveryStatus: f.DeliveryStatus,
		Platform:       f.Platform,
	}
}

// Offset calculates the slice offset for (1-based) pagination.
func (f *ReportForm) Offset() int {
	return (f.Page - 1) * pageLen
}

// IngestForm is the body of an ingest request.
type IngestForm struct {
	CSVURL string `json:"csv_url"`
}

// DecodeIngestForm decodes a JSON ingest request body.
func DecodeIngestForm(w http.ResponseWriter, r *http.Request) (*IngestForm, error) {
	var form IngestForm
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
	if err := dec.Decode(&form); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is empty")
		}
		return nil, fmt.Errorf("request body decoding error: %v", err)
	}
	form.CSVURL = strings.TrimSpace(form.CSVURL)
	return &form, nil
}

// Validate checks that an http(s) csv url was provided.
func (f *IngestForm) Validate(v *Validator) {
	if f.CSVURL == "" {
		v.AddError("csv_url", "A csv_url must be provided.")
		return
	}
	v.Check(source.IsRemote(f.CSVURL), "csv_url", "The csv_url must be an http or https url.")
}

// ------------------------------------------------------------------------------
// General decoding funcs
// ------------------------------------------------------------------------------

// newSchemaDecoder creates a new schema.Decoder instance and registers
// a custom converter for the time.Time type. Unparseable dates are reported as
// conversion errors.
func newSchemaDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	decoder.RegisterConverter(time.Time{}, func(value string) reflect.Value {
		if value == "" {
			return reflect.ValueOf(time.Time{})
		}
		t, err := time.Parse("2006-01-02", value)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(t)
	})

	return decoder
}

// DecodeURLParams is helper that decodes URL query parameters from a request
// into a destination struct (dst). Field conversion failures are added to v; other
// decoding failures are returned.
func DecodeURLParams(r *http.Request, dst any, v *Validator) error {
	decoder := newSchemaDecoder()
	err := decoder.Decode(dst, r.URL.Query())
	if err == nil {
		return nil
	}
	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return fmt.Errorf("url parameter decoding error: %v", err)
	}
	keys := make([]string, 0, len(multi))
	for k := range multi {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.AddError(k, fmt.Sprintf("Invalid %s value provided.", k))
	}
	return nil
}
