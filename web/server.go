package web

// This file describes the json api server for this project.
//
// Note that modules called by this server should provide self-describing errors since
// these are sent directly to an internal server error func:
//
//	web.ServerError(w, r, err)
//
// Each endpoint handler is set out as a function returning an http.Handler. This allows
// for the router to provide arguments to the handler, as discussed in Mat Ryer's post at
//
//	https://grafana.com/blog/how-i-write-http-services-in-go-after-13-years/
//
// Helper functions, such as `ServerError` and `clientError` are at the end of the file.

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rorycl/orderingest/config"
	"github.com/rorycl/orderingest/db"
	"github.com/rorycl/orderingest/ingest"
	"github.com/rorycl/orderingest/platform"
	"github.com/xuri/excelize/v2"
)

// pageLen is the number of orders to show in a page listing.
const pageLen = 50

// writeTimeout bounds a response, which for an ingest request includes the whole batch.
const writeTimeout = 5 * time.Minute

// shutdownTimeout bounds the graceful shutdown of the server.
const shutdownTimeout = 10 * time.Second

// exportSheet is the worksheet name of the xlsx download.
const exportSheet = "Orders"

// WebApp is the configuration object for the web server.
type WebApp struct {
	log       *slog.Logger
	accessLog io.Writer // the destination of the http access log.
	cfg       *config.Config
	db        *db.DB
	ingester  *ingest.Ingester
	registry  *platform.Registry
	metrics   *ingest.Metrics
	server    *http.Server
}

// New initialises a WebApp. metrics may be nil, in which case the /metrics endpoint
// is not found.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	database *db.DB,
	ingester *ingest.Ingester,
	registry *platform.Registry,
	metrics *ingest.Metrics,
) (*WebApp, error) {
	if database == nil || ingester == nil || registry == nil {
		return nil, errors.New("web app requires a database, ingester and registry")
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &http.Server{
		Addr:              cfg.Web.ListenAddress,
		ReadHeaderTimeout: time.Duration(30 * time.Second),
		WriteTimeout:      writeTimeout,
		MaxHeaderBytes:    1 << 19, // 500k ish
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	webApp := &WebApp{
		log:       logger,
		accessLog: os.Stdout,
		cfg:       cfg,
		db:        database,
		ingester:  ingester,
		registry:  registry,
		metrics:   metrics,
		server:    server,
	}
	return webApp, nil
}

// StartServer starts a WebApp, shutting it down gracefully when ctx is cancelled.
func (web *WebApp) StartServer(ctx context.Context) error {
	web.server.Handler = web.routes()

	errChan := make(chan error, 1)
	go func() {
		web.log.Info("starting server", "address", web.cfg.Web.ListenAddress)
		errChan <- web.server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	web.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := web.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// routes connects all of the endpoints and provides middleware. The api endpoints
// accept an optional trailing slash.
func (web *WebApp) routes() http.Handler {

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.notFound(w, r, "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.clientError(w, "", http.StatusMethodNotAllowed)
	})

	// Ingestion.
	r.Handle(
		"/api/ingest{slash:/?}",
		web.preventCSRF(web.handleIngest()),
	).Methods(http.MethodPost)
	r.Handle(
		"/api/failed_rows/{batch:[A-Za-z0-9-]+}",
		web.handleFailedRows(),
	).Methods(http.MethodGet)

	// Reports.
	r.Handle(
		"/api/monthly_sales{slash:/?}",
		web.handleMonthlySales(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/monthly_revenue{slash:/?}",
		web.handleMonthlyRevenue(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/summary_metrics{slash:/?}",
		web.handleSummaryMetrics(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/categories{slash:/?}",
		web.handleCategories(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/platforms{slash:/?}",
		web.handlePlatforms(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/orders{slash:/?}",
		web.handleOrders(),
	).Methods(http.MethodGet)

	// Downloads.
	r.Handle(
		"/api/download_csv{slash:/?}",
		web.handleDownloadCSV(),
	).Methods(http.MethodGet)
	r.Handle(
		"/api/download_xlsx{slash:/?}",
		web.handleDownloadXLSX(),
	).Methods(http.MethodGet)

	// Operations.
	r.Handle("/metrics", web.metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/healthz", web.handleHealth()).Methods(http.MethodGet)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(web.log.Handler(), slog.LevelError)),
	)(r)
	logging := handlers.LoggingHandler(web.accessLog, recovery)
	return logging
}

// handleIngest serves POST /api/ingest, running an ingestion batch for the csv_url in
// the json body. The response status is that of the batch result.
func (web *WebApp) handleIngest() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, err := DecodeIngestForm(w, r)
		if err != nil {
			web.clientError(w, err.Error(), http.StatusBadRequest)
			return
		}

		validator := NewValidator()
		form.Validate(validator)
		if !validator.Valid() {
			web.validationError(w, validator)
			return
		}

		result := web.ingester.Run(r.Context(), form.CSVURL)
		web.writeJSON(w, r, result.StatusCode, result)
	})
}

// handleFailedRows serves the failed row audit records of a batch.
func (web *WebApp) handleFailedRows() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		vars, err := validMuxVars(mux.Vars(r), "batch")
		if err != nil {
			web.clientError(w, err.Error(), http.StatusBadRequest)
			return
		}
		batchID := vars["batch"]

		rows, err := web.db.FailedRowsGet(r.Context(), batchID)
		if err != nil {
			web.ServerError(w, r, err)
			return
		}
		if len(rows) == 0 {
			web.notFound(w, r, fmt.Sprintf("no failed rows for batch %q", batchID))
			return
		}
		web.writeJSON(w, r, http.StatusOK, rows)
	})
}

// handleMonthlySales serves the quantity sold per month.
func (web *WebApp) handleMonthlySales() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		sales, err := web.db.MonthlySalesGet(r.Context(), form.Filter())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}
		if sales == nil {
			sales = []db.MonthlySales{}
		}
		web.writeJSON(w, r, http.StatusOK, sales)
	})
}

// handleMonthlyRevenue serves the quantity sold and revenue per month.
func (web *WebApp) handleMonthlyRevenue() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		revenue, err := web.db.MonthlyRevenueGet(r.Context(), form.Filter())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}
		if revenue == nil {
			revenue = []db.MonthlyRevenue{}
		}
		web.writeJSON(w, r, http.StatusOK, revenue)
	})
}

// handleSummaryMetrics serves the headline metrics.
func (web *WebApp) handleSummaryMetrics() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		summary, err := web.db.SummaryGet(r.Context(), form.Filter())
		if err != nil {
			web.ServerError(w, r, err)
			return
		}
		web.writeJSON(w, r, http.StatusOK, summary)
	})
}

// handleCategories serves the distinct order categories, optionally for one platform.
func (web *WebApp) handleCategories() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		categories, err := web.db.CategoriesGet(r.Context(), form.Platform)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}
		web.writeJSON(w, r, http.StatusOK, newViewCategories(categories))
	})
}

// handlePlatforms serves the supported platform identifiers.
func (web *WebApp) handlePlatforms() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.writeJSON(w, r, http.StatusOK, web.registry.Platforms())
	})
}

// handleOrders serves a page of the filtered orders.
func (web *WebApp) handleOrders() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		orders, err := web.db.OrdersExportGet(r.Context(), form.Filter())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}

		pagination, err := NewPagination(pageLen, len(orders), form.Page, r.URL.Query())
		if err != nil {
			var pageErr ErrInvalidPageNo
			if errors.As(err, &pageErr) {
				validator := NewValidator()
				validator.AddError("page", pageErr.Error())
				web.validationError(w, validator)
				return
			}
			web.ServerError(w, r, err)
			return
		}

		start := min(form.Offset(), len(orders))
		end := min(start+pageLen, len(orders))

		data := struct {
			Orders     []viewOrder `json:"orders"`
			Pagination *Pagination `json:"pagination"`
		}{
			Orders:     newViewOrders(orders[start:end]),
			Pagination: pagination,
		}
		web.writeJSON(w, r, http.StatusOK, data)
	})
}

// handleDownloadCSV serves the filtered orders as a csv attachment.
func (web *WebApp) handleDownloadCSV() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		orders, err := web.db.OrdersExportGet(r.Context(), form.Filter())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="filtered_orders.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write(db.ExportHeader)
		for _, o := range orders {
			_ = cw.Write(o.Record())
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			web.log.Error("csv download write error", "error", err)
		}
	})
}

// handleDownloadXLSX serves the filtered orders as an xlsx workbook attachment.
func (web *WebApp) handleDownloadXLSX() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		form, ok := web.reportForm(w, r)
		if !ok {
			return
		}

		orders, err := web.db.OrdersExportGet(r.Context(), form.Filter())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			web.ServerError(w, r, err)
			return
		}

		f, err := ordersWorkbook(orders)
		if err != nil {
			web.ServerError(w, r, err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="filtered_orders.xlsx"`)
		if err := f.Write(w); err != nil {
			web.log.Error("xlsx download write error", "error", err)
		}
	})
}

// handleHealth reports whether the database is reachable.
func (web *WebApp) handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := web.db.PingContext(r.Context()); err != nil {
			web.ServerError(w, r, err)
			return
		}
		web.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ordersWorkbook builds a single sheet workbook of orders.
func ordersWorkbook(orders []db.OrderExport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx sheet error: %w", err)
	}

	header := make([]any, len(db.ExportHeader))
	for i, h := range db.ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx header error: %w", err)
	}
	for i, o := range orders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		row := xlsxRow(o)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("xlsx row %d error: %w", i+2, err)
		}
	}
	return f, nil
}

// Helpers
/* -------------------------------------------------------------------------- */

// reportForm decodes and validates the report filters of a request. If the filters
// are invalid the error response has been written and false is returned.
func (web *WebApp) reportForm(w http.ResponseWriter, r *http.Request) (*ReportForm, bool) {
	form := NewReportForm()
	validator := NewValidator()
	if err := DecodeURLParams(r, form, validator); err != nil {
		web.clientError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	form.Validate(validator, web.registry)
	if !validator.Valid() {
		web.validationError(w, validator)
		return nil, false
	}
	return form, true
}

// writeJSON writes data as a json response with the given status.
func (web *WebApp) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		web.ServerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ServerError logs and return an internal server error. The error should contain the
// information needed for logging.
func (web *WebApp) ServerError(w http.ResponseWriter, r *http.Request, errs ...error) {
	err := errors.Join(errs...)
	web.log.Error(err.Error(), "method", r.Method, "uri", r.URL.RequestURI())
	web.clientError(w, "", http.StatusInternalServerError)
}

// clientError returns a json client error.
func (web *WebApp) clientError(w http.ResponseWriter, message string, status int) {
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// validationError returns the validation errors as a 400 json response.
func (web *WebApp) validationError(w http.ResponseWriter, v *Validator) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(v)
}

// notfound raises a 404 clientError.
func (web *WebApp) notFound(w http.ResponseWriter, r *http.Request, message string) {
	web.clientError(w, message, http.StatusNotFound)
}
