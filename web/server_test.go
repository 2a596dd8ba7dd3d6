package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rorycl/orderingest/config"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/ingest"
	"github.com/rorycl/orderingest/platform"
	"github.com/rorycl/orderingest/source"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const amazonCSV = "OrderID,ProductID,ProductName,Category,QuantitySold,SellingPrice,DateOfSale," +
	"CustomerID,CustomerName,ContactEmail,PhoneNumber,DeliveryAddress,DeliveryDate," +
	"DeliveryStatus,Platform,PrimeDelivery,WarehouseLocation\n" +
	"AMZ-1,P-1,Mouse,Electronics,2,499.99,2024-01-05,C001,Asha,asha@example.com,,12 MG Road,2024-01-08,Delivered,AMAZON,Yes,BLR-1\n" +
	"AMZ-2,P-2,Novel,Books,1,250,2024-01-06,C001,Asha,asha@example.com,,12 MG Road,,Cancelled,AMAZON,No,\n" +
	"AMZ-3,P-3,Lamp,Home,3,1200.50,2024-02-01,C002,Ravi,,,3 Park St,2024-02-04,Delivered,AMAZON,,\n"

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testApp is a WebApp over a temporary database, with an upstream server holding
// the csv exports to ingest. localCSV is a copy of the export on the server's own
// filesystem, which must not be ingestable over http.
type testApp struct {
	web      *WebApp
	handler  http.Handler
	upstream *httptest.Server
	localCSV string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := discardLogger()
	testDB, err := db.NewConnection(filepath.Join(t.TempDir(), "test.db"), nil, logger)
	if err != nil {
		t.Fatalf("test database opening error: %v", err)
	}
	t.Cleanup(func() { _ = testDB.Close() })

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, amazonCSV)
	}))
	t.Cleanup(upstream.Close)

	registry := platform.NewRegistry()
	metrics := ingest.NewMetrics()
	ingester := ingest.New(
		testDB,
		registry,
		source.NewFetcher(upstream.Client(), logger, source.WithRemoteOnly()),
		logger,
		ingest.WithMetrics(metrics),
		ingest.WithFailedRowAudit(true),
	)

	cfg := &config.Config{Web: config.WebConfig{ListenAddress: "127.0.0.1:0"}}
	web, err := New(logger, cfg, testDB, ingester, registry, metrics)
	if err != nil {
		t.Fatal(err)
	}
	web.accessLog = io.Discard

	localCSV := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(localCSV, []byte(amazonCSV), 0644); err != nil {
		t.Fatal(err)
	}

	return &testApp{web: web, handler: web.routes(), upstream: upstream, localCSV: localCSV}
}

// do runs a request against the app's routes.
func (a *testApp) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

// runIngest posts the upstream orders file for ingestion.
func (a *testApp) runIngest(t *testing.T) ingest.Result {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/ingest", `{"csv_url": "`+a.upstream.URL+`/orders.csv"}`)
	var result ingest.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("result decoding error: %v (%s)", err, w.Body.String())
	}
	if w.Code != result.StatusCode {
		t.Errorf("http status %d does not match result status %d", w.Code, result.StatusCode)
	}
	return result
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &config.Config{}, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for missing dependencies")
	}
}

func TestIngestEndpoint(t *testing.T) {

	app := newTestApp(t)

	result := app.runIngest(t)
	if got, want := result.Status, ingest.StatusOK; got != want {
		t.Fatalf("got status %q want %q (%s)", got, want, result.Message)
	}
	if got, want := result.Message, "Processed 3 rows. Success: 3, Failed: 0"; got != want {
		t.Errorf("got message %q want %q", got, want)
	}

	// A repeat batch fails every row on the duplicate order ids but is still ok.
	repeat := app.runIngest(t)
	if repeat.Status != ingest.StatusOK || repeat.Failed != 3 {
		t.Fatalf("unexpected repeat result %+v", repeat)
	}

	w := app.do(t, http.MethodGet, "/api/failed_rows/"+repeat.BatchID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("failed rows got status %d: %s", w.Code, w.Body.String())
	}
	var failed []db.FailedRow
	if err := json.Unmarshal(w.Body.Bytes(), &failed); err != nil {
		t.Fatal(err)
	}
	var orderIDs []string
	for _, f := range failed {
		orderIDs = append(orderIDs, f.OrderID)
	}
	if diff := cmp.Diff([]string{"AMZ-1", "AMZ-2", "AMZ-3"}, orderIDs); diff != "" {
		t.Errorf("failed rows mismatch (-want +got):\n%s", diff)
	}

	if w := app.do(t, http.MethodGet, "/api/failed_rows/"+result.BatchID, ""); w.Code != http.StatusNotFound {
		t.Errorf("clean batch failed rows got status %d want 404", w.Code)
	}
}

func TestIngestEndpointErrors(t *testing.T) {

	app := newTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"empty body", http.MethodPost, "/api/ingest", "", http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/ingest/", "{", http.StatusBadRequest},
		{"missing csv_url", http.MethodPost, "/api/ingest", `{"csv_url": " "}`, http.StatusBadRequest},
		{"retrieval failure", http.MethodPost, "/api/ingest", `{"csv_url": "` + app.upstream.URL + `/absent.csv"}`, http.StatusInternalServerError},
		{"wrong method", http.MethodGet, "/api/ingest", "", http.StatusMethodNotAllowed},
		{"server path", http.MethodPost, "/api/ingest", `{"csv_url": "` + app.localCSV + `"}`, http.StatusBadRequest},
		{"file url", http.MethodPost, "/api/ingest", `{"csv_url": "file://` + app.localCSV + `"}`, http.StatusBadRequest},
		{"absent server path", http.MethodPost, "/api/ingest", `{"csv_url": "/nonexistent/x.csv"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("got status %d want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if got := w.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("got content type %q", got)
			}
		})
	}
}

func TestReportEndpoints(t *testing.T) {

	app := newTestApp(t)
	app.runIngest(t)

	t.Run("monthly sales", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/monthly_sales/", "")
		var got []db.MonthlySales
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		want := []db.MonthlySales{{Month: "2024-01-01", TotalQuantity: 3}, {Month: "2024-02-01", TotalQuantity: 3}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("monthly sales mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("monthly revenue without slash", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/monthly_revenue?start_date=2024-02-01", "")
		var got []db.MonthlyRevenue
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		want := []db.MonthlyRevenue{{Month: "2024-02-01", TotalQuantity: 3, TotalRevenue: decimal.RequireFromString("3601.50")}}
		if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
			t.Errorf("monthly revenue mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("summary", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/summary_metrics/?platform=amazon", "")
		var got db.Summary
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		want := db.Summary{
			TotalRevenue:             decimal.RequireFromString("4851.48"),
			TotalOrders:              3,
			TotalProductsSold:        6,
			CancelledOrders:          1,
			CancelledOrderPercentage: decimal.RequireFromString("33.33"),
		}
		if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("categories", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/categories/", "")
		want := `[{"category":"Books"},{"category":"Electronics"},{"category":"Home"}]`
		if got := w.Body.String(); got != want {
			t.Errorf("got %s want %s", got, want)
		}
	})

	t.Run("empty report", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/monthly_sales/?platform=FLIPKART", "")
		if w.Code != http.StatusOK || w.Body.String() != "[]" {
			t.Errorf("got %d %s want 200 []", w.Code, w.Body.String())
		}
	})

	t.Run("platforms", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/platforms", "")
		want := `["AMAZON","FLIPKART","MEESHO"]`
		if got := w.Body.String(); got != want {
			t.Errorf("got %s want %s", got, want)
		}
	})
}

func TestReportFilterValidation(t *testing.T) {

	app := newTestApp(t)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"bad start date", "start_date=01/02/2024", "start_date"},
		{"end before start", "start_date=2024-02-01&end_date=2024-01-01", "end_date"},
		{"unsupported platform", "platform=shopify", "platform"},
		{"bad page", "page=two", "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodGet, "/api/summary_metrics/?"+tt.query, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d want 400", w.Code)
			}
			var v Validator
			if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
				t.Fatal(err)
			}
			if !v.FieldError(tt.field) {
				t.Errorf("expected error for %q, got %v", tt.field, v.Errors)
			}
		})
	}
}

func TestOrdersEndpoint(t *testing.T) {

	app := newTestApp(t)
	app.runIngest(t)

	w := app.do(t, http.MethodGet, "/api/orders/?category=Home", "")
	var got struct {
		Orders     []viewOrder `json:"orders"`
		Pagination struct {
			Page    int `json:"page"`
			Pages   int `json:"pages"`
			Records int `json:"records"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Orders) != 1 || got.Orders[0].OrderID != "AMZ-3" || got.Orders[0].SellingPrice != "1200.50" {
		t.Errorf("unexpected orders %+v", got.Orders)
	}
	if got.Pagination.Page != 1 || got.Pagination.Pages != 1 || got.Pagination.Records != 1 {
		t.Errorf("unexpected pagination %+v", got.Pagination)
	}

	if w := app.do(t, http.MethodGet, "/api/orders/?page=3", ""); w.Code != http.StatusBadRequest {
		t.Errorf("out of range page got status %d want 400", w.Code)
	}
}

func TestDownloads(t *testing.T) {

	app := newTestApp(t)
	app.runIngest(t)

	t.Run("csv", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/download_csv/?delivery_status=delivered", "")
		if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "filtered_orders.csv") {
			t.Errorf("got content disposition %q", got)
		}
		records, err := csv.NewReader(w.Body).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records want 3", len(records))
		}
		if diff := cmp.Diff(db.ExportHeader, records[0]); diff != "" {
			t.Errorf("header mismatch (-want +got):\n%s", diff)
		}
		if got, want := records[1][0], "AMZ-1"; got != want {
			t.Errorf("got order %q want %q", got, want)
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/download_xlsx", "")
		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		rows, err := f.GetRows(exportSheet)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 4 {
			t.Fatalf("got %d rows want 4", len(rows))
		}
		if got, want := rows[3][0], "AMZ-3"; got != want {
			t.Errorf("got order %q want %q", got, want)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {

	app := newTestApp(t)
	app.runIngest(t)

	if w := app.do(t, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz got status %d", w.Code)
	}

	w := app.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics got status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `orderingest_batches_total{platform="AMAZON",status="ok"} 1`) {
		t.Errorf("metrics missing batch counter:\n%s", w.Body.String())
	}

	if w := app.do(t, http.MethodGet, "/nowhere", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown path got status %d want 404", w.Code)
	}
}
