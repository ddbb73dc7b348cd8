// Package sqlreporter provides an operations.Reporter that persists reports in a SQL database,
// so cached results survive between runs of the same plan.
//
// Reports are stored as JSON. Inputs and outputs are read back as json.RawMessage and typed by
// the executor when a cached report is reused.
package sqlreporter

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // postgres driver

	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

const (
	schemaReports = `
		CREATE TABLE IF NOT EXISTS operation_reports (
			report_id  TEXT PRIMARY KEY,
			seq_no     INT NOT NULL,
			payload    TEXT NOT NULL
		);`

	queryInsert   = `INSERT INTO operation_reports (report_id, seq_no, payload) VALUES ($1, $2, $3)`
	querySelectID = `SELECT payload FROM operation_reports WHERE report_id = $1`
	querySelect   = `SELECT payload FROM operation_reports ORDER BY seq_no ASC`
	querySeq      = `SELECT seq_no FROM operation_reports`
)

var _ operations.Reporter = (*Reporter)(nil)

// Reporter is an operations.Reporter backed by database/sql. Reports are returned in the order
// they were added. It is safe for concurrent use within one process.
type Reporter struct {
	db   *sql.DB
	own  bool
	lggr logger.Logger

	mu   sync.Mutex
	next int64
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger statements are traced to at debug level.
func WithLogger(lggr logger.Logger) Option {
	return func(r *Reporter) {
		r.lggr = lggr
	}
}

// Open opens the database with driver and dsn and returns a Reporter that owns it. The postgres
// driver is registered by this package.
func Open(driver, dsn string, opts ...Option) (*Reporter, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s reports database: %w", driver, err)
	}
	r, err := New(db, opts...)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	r.own = true

	return r, nil
}

// New returns a Reporter storing reports in db, creating the reports table when missing.
func New(db *sql.DB, opts ...Option) (*Reporter, error) {
	r := &Reporter{db: db, lggr: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.exec(schemaReports); err != nil {
		return nil, fmt.Errorf("failed to create reports schema: %w", err)
	}
	next, err := r.nextSeq()
	if err != nil {
		return nil, err
	}
	r.next = next

	return r, nil
}

// Close closes the database when the Reporter was created by Open.
func (r *Reporter) Close() error {
	if !r.own {
		return nil
	}

	return r.db.Close()
}

// AddReport stores report after every report added before it.
func (r *Reporter) AddReport(report operations.Report[any, any]) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.exec(queryInsert, report.ID, r.next, string(payload)); err != nil {
		return fmt.Errorf("insert report %s: %w", report.ID, err)
	}
	r.next++

	return nil
}

// GetReport returns the report with id or an error wrapping operations.ErrReportNotFound.
func (r *Reporter) GetReport(id string) (operations.Report[any, any], error) {
	reports, err := r.query(querySelectID, id)
	if err != nil {
		return operations.Report[any, any]{}, err
	}
	if len(reports) == 0 {
		return operations.Report[any, any]{}, fmt.Errorf("report_id %s: %w", id, operations.ErrReportNotFound)
	}

	return reports[0], nil
}

// GetReports returns every stored report in insertion order.
func (r *Reporter) GetReports() ([]operations.Report[any, any], error) {
	return r.query(querySelect)
}

// GetExecutionReports returns the report with reportID and all its descendants, children first.
func (r *Reporter) GetExecutionReports(reportID string) ([]operations.Report[any, any], error) {
	return operations.CollectExecutionReports(r.GetReport, reportID)
}

func (r *Reporter) exec(q string, args ...any) error {
	r.lggr.Debugw("Executing statement", "statement", q)
	_, err := r.db.Exec(q, args...)

	return err
}

func (r *Reporter) query(q string, args ...any) ([]operations.Report[any, any], error) {
	r.lggr.Debugw("Executing query", "query", q, "args", args)
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []operations.Report[any, any]
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}

	return reports, nil
}

func (r *Reporter) nextSeq() (int64, error) {
	rows, err := r.db.Query(querySeq)
	if err != nil {
		return 0, fmt.Errorf("read report sequence: %w", err)
	}
	defer rows.Close()

	var next int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return 0, fmt.Errorf("scan report sequence: %w", err)
		}
		next = max(next, seq+1)
	}

	return next, rows.Err()
}

func decodeReport(payload string) (operations.Report[any, any], error) {
	var stored operations.Report[json.RawMessage, json.RawMessage]
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return operations.Report[any, any]{}, fmt.Errorf("decode report: %w", err)
	}

	return stored.ToGenericReport(), nil
}
