// Package db provides the storage component of the order ingestion project.
//
// The database backend is sqlite. Each statement below is held in an sql file in the
// `sql` directory, which can be run on the sqlite command line. (The insert statements
// are best run in a transaction, so that the results can be rolled back.)
//
// The use of external, runnable sql files also as Go prepared statements is made
// possible through the parameterization scheme set out in parameterize.go.
//
// Ingestion writes each source row in its own transaction, obtained with InRowTx. The
// connection pool is limited to a single connection, which is held by the row
// transaction for its duration.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx" // helper library
	_ "modernc.org/sqlite"    // pure go sqlite driver
)

// SQLEmbeddedFS holds the schema and statement files.
//
//go:embed sql
var SQLEmbeddedFS embed.FS

// schemaFile creates the tables if they do not already exist.
const schemaFile = "schema.sql"

// parameterizedStmt describes an sql file parsed into an sqlx NamedStmt expecting the
// provided args.
type parameterizedStmt struct {
	sqlFile string
	args    []string
	*sqlx.NamedStmt
}

// verifyArgs checks that the arguments provided to a parameterizedStmt are exactly
// those declared in its sql file.
func (p *parameterizedStmt) verifyArgs(args map[string]any) error {
	if got, want := len(args), len(p.args); got != want {
		return fmt.Errorf(
			"argument length to named statement from %q incorrect: got %d want %d",
			p.sqlFile,
			got,
			want,
		)
	}
	for _, a := range p.args {
		if _, ok := args[a]; !ok {
			return fmt.Errorf("argument %q to named statement from %q missing", a, p.sqlFile)
		}
	}
	return nil
}

// DB provides a wrapper around the sqlx.DB connection for application-specific db
// operations.
type DB struct {
	*sqlx.DB
	sqlFS fs.FS
	log   *slog.Logger

	// Ingestion statements.
	customerInsertStmt  *parameterizedStmt
	platformInsertStmt  *parameterizedStmt
	platformIDStmt      *parameterizedStmt
	orderInsertStmt     *parameterizedStmt
	deliveryInsertStmt  *parameterizedStmt
	failedRowInsertStmt *parameterizedStmt

	// Report statements.
	monthlySalesStmt   *parameterizedStmt
	monthlyRevenueStmt *parameterizedStmt
	summaryStmt        *parameterizedStmt
	categoriesStmt     *parameterizedStmt
	ordersExportStmt   *parameterizedStmt
}

// NewConnection opens the sqlite database at dbPath, creates the schema if necessary
// and prepares the named statements. sqlFS holds the sql files at its root; if nil the
// embedded files are used. If logger is nil slog.Default is used.
func NewConnection(dbPath string, sqlFS fs.FS, logger *slog.Logger) (*DB, error) {

	if dbPath == "" {
		return nil, errors.New("no database path provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sqlFS == nil {
		var err error
		sqlFS, err = fs.Sub(SQLEmbeddedFS, "sql")
		if err != nil {
			return nil, fmt.Errorf("could not mount embedded sql: %w", err)
		}
	}

	dbDB, err := sql.Open("sqlite", dataSource(dbPath))
	if err != nil {
		return nil, err
	}

	// A single connection serves the whole process; row transactions take turns on it.
	dbDB.SetMaxOpenConns(1)

	if err := dbDB.Ping(); err != nil {
		_ = dbDB.Close()
		return nil, err
	}

	// Wrap the standard library *sql.DB with sqlx.
	db := &DB{
		DB:    sqlx.NewDb(dbDB, "sqlite"),
		sqlFS: sqlFS,
		log:   logger,
	}

	// The schema must exist before statements referring to its tables can be
	// prepared.
	if err := db.InitSchema(context.Background(), schemaFile); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.prepareNamedStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not prepare named statements: %w", err)
	}
	return db, nil
}

// dataSource returns the sqlite data source name for dbPath. File databases use WAL
// mode; all connections enforce foreign keys.
func dataSource(dbPath string) string {
	if strings.Contains(dbPath, ":memory:") || strings.Contains(dbPath, "mode=memory") {
		sep := "?"
		if strings.Contains(dbPath, "?") {
			sep = "&"
		}
		return dbPath + sep + "_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)
}

// prepareNamedStatements prepares all the named statements for this database
// connection.
func (db *DB) prepareNamedStatements() error {
	stmts := []struct {
		stmt    **parameterizedStmt
		sqlFile string
	}{
		{&db.customerInsertStmt, "customer_insert.sql"},
		{&db.platformInsertStmt, "platform_insert.sql"},
		{&db.platformIDStmt, "platform_id.sql"},
		{&db.orderInsertStmt, "order_insert.sql"},
		{&db.deliveryInsertStmt, "delivery_insert.sql"},
		{&db.failedRowInsertStmt, "failed_row_insert.sql"},
		{&db.monthlySalesStmt, "monthly_sales.sql"},
		{&db.monthlyRevenueStmt, "monthly_revenue.sql"},
		{&db.summaryStmt, "summary_metrics.sql"},
		{&db.categoriesStmt, "categories.sql"},
		{&db.ordersExportStmt, "orders_export.sql"},
	}
	for _, s := range stmts {
		var err error
		*s.stmt, err = db.prepNamedStatement(s.sqlFile)
		if err != nil {
			return fmt.Errorf("%s statement error: %w", strings.TrimSuffix(s.sqlFile, ".sql"), err)
		}
	}
	return nil
}

// prepNamedStatement parameterizes and prepares the sql file.
func (db *DB) prepNamedStatement(filePath string) (*parameterizedStmt, error) {
	query, err := ParameterizeFile(db.sqlFS, filePath)
	if err != nil {
		return nil, fmt.Errorf("could not parameterize %q: %w", filePath, err)
	}

	pQuery, err := db.PrepareNamed(string(query.Body))
	if err != nil {
		return nil, fmt.Errorf("could not prepare statement %q: %w", filePath, err)
	}
	return &parameterizedStmt{
		filePath,
		query.Parameters,
		pQuery,
	}, nil
}

// InitSchema creates the necessary tables if they don't already exist. The schema file
// can be run idempotently.
func (db *DB) InitSchema(ctx context.Context, filePath string) error {

	schema, err := fs.ReadFile(db.sqlFS, filePath)
	if err != nil {
		return fmt.Errorf("could not read schema file at %q: %w", filePath, err)
	}

	_, err = db.ExecContext(ctx, string(schema))
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// logQuery is for helping debug SQL issues.
func (db *DB) logQuery(name string, stmt *parameterizedStmt, args map[string]any, err error) {
	db.log.Debug(
		"sql",
		"name", name,
		"file", stmt.sqlFile,
		"args", args,
		"error", err,
	)
}
