package operations

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrReportNotFound is returned when no report has the requested ID.
var ErrReportNotFound = errors.New("report not found")

// Report records one run of a management task.
//
// For tasks run through ExecuteRequest, Input is the request tree that was submitted
// (*dmr.ModelNode) and Output is the Outcome read from the server response, including the
// per-step outcomes of a composite. A run that ended with an error still carries its last
// output, so a rolled back composite keeps the step that failed.
type Report[IN, OUT any] struct {
	ID        string       `json:"id"`
	Def       Definition   `json:"definition"`
	Output    OUT          `json:"output"`
	Input     IN           `json:"input"`
	Timestamp *time.Time   `json:"timestamp"`
	Err       *ReportError `json:"error"`
	// ChildOperationReports holds the IDs of the reports recorded while a sequence ran.
	ChildOperationReports []string `json:"childOperationReports"`
}

// Succeeded reports whether the run finished without an error.
func (r Report[IN, OUT]) Succeeded() bool { return r.Err == nil }

// ToGenericReport converts the Report to the untyped form a Reporter stores.
func (r Report[IN, OUT]) ToGenericReport() Report[any, any] {
	return genericReport(r)
}

// SequenceReport is the report of a sequence together with the reports of every task the
// sequence ran, children before their parent.
type SequenceReport[IN, OUT any] struct {
	Report[IN, OUT]

	ExecutionReports []Report[any, any]
}

// ToGenericSequenceReport converts the SequenceReport to its untyped form.
func (r SequenceReport[IN, OUT]) ToGenericSequenceReport() SequenceReport[any, any] {
	return SequenceReport[any, any]{
		Report:           genericReport(r.Report),
		ExecutionReports: r.ExecutionReports,
	}
}

// NewReport records a run of def with a fresh ID and the current time. childReportsID is only
// set for sequences.
func NewReport[IN, OUT any](
	def Definition, input IN, output OUT, err error, childReportsID ...string,
) Report[IN, OUT] {
	now := time.Now()
	r := Report[IN, OUT]{
		ID:                    uuid.New().String(),
		Def:                   def,
		Output:                output,
		Input:                 input,
		Timestamp:             &now,
		ChildOperationReports: childReportsID,
	}
	if err != nil {
		r.Err = &ReportError{Message: err.Error()}
	}

	return r
}

// ReportError is the stored form of a run error. A failed management outcome is kept as its
// message, e.g. "WFLYCTL0216: Management resource not found".
type ReportError struct {
	Message string `json:"message"`
}

func (o ReportError) Error() string {
	return o.Message
}

// Reporter stores reports. Implementations keep them in memory (MemoryReporter) or in a SQL
// database (package sqlreporter). Reports are returned in the order they were added.
type Reporter interface {
	GetReport(id string) (Report[any, any], error)
	GetReports() ([]Report[any, any], error)
	AddReport(report Report[any, any]) error
	GetExecutionReports(reportID string) ([]Report[any, any], error)
}

// MemoryReporter keeps reports in memory. It is safe for concurrent use.
type MemoryReporter struct {
	reports []Report[any, any]
	mu      sync.RWMutex
}

type MemoryReporterOption func(*MemoryReporter)

// WithReports seeds the MemoryReporter, e.g. with the reports of an earlier run.
func WithReports(reports []Report[any, any]) MemoryReporterOption {
	return func(mr *MemoryReporter) {
		mr.reports = reports
	}
}

func NewMemoryReporter(options ...MemoryReporterOption) *MemoryReporter {
	reporter := &MemoryReporter{}
	for _, opt := range options {
		opt(reporter)
	}

	return reporter
}

func (e *MemoryReporter) AddReport(report Report[any, any]) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reports = append(e.reports, report)

	return nil
}

// GetReports returns a copy of all reports.
func (e *MemoryReporter) GetReports() ([]Report[any, any], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.reports), nil
}

// GetReport returns the report with the given ID or an error wrapping ErrReportNotFound.
func (e *MemoryReporter) GetReport(id string) (Report[any, any], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.find(id)
}

// GetExecutionReports returns the report tree rooted at seqID, children before their parent.
func (e *MemoryReporter) GetExecutionReports(seqID string) ([]Report[any, any], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return CollectExecutionReports(e.find, seqID)
}

func (e *MemoryReporter) find(id string) (Report[any, any], error) {
	i := slices.IndexFunc(e.reports, func(r Report[any, any]) bool { return r.ID == id })
	if i < 0 {
		return Report[any, any]{}, fmt.Errorf("report_id %s: %w", id, ErrReportNotFound)
	}

	return e.reports[i], nil
}

// CollectExecutionReports walks the report tree rooted at reportID through lookup and returns
// every report in it, children before their parent. Reporter implementations use it for
// GetExecutionReports.
func CollectExecutionReports(
	lookup func(id string) (Report[any, any], error), reportID string,
) ([]Report[any, any], error) {
	var out []Report[any, any]

	var walk func(id string) error
	walk = func(id string) error {
		report, err := lookup(id)
		if err != nil {
			return err
		}
		for _, childID := range report.ChildOperationReports {
			if err := walk(childID); err != nil {
				return err
			}
		}
		out = append(out, report)

		return nil
	}

	if err := walk(reportID); err != nil {
		return nil, err
	}

	return out, nil
}

// RecentReporter wraps a Reporter and remembers the reports added through it. ExecuteSequence
// uses it to find the reports of the tasks a sequence ran. It is safe for concurrent use.
type RecentReporter struct {
	Reporter
	recentReports []Report[any, any]
	mu            sync.RWMutex
}

// AddReport stores the report in the wrapped Reporter and then remembers it.
func (e *RecentReporter) AddReport(report Report[any, any]) error {
	if err := e.Reporter.AddReport(report); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.recentReports = append(e.recentReports, report)

	return nil
}

// GetRecentReports returns a copy of the reports added since the RecentReporter was created.
func (e *RecentReporter) GetRecentReports() []Report[any, any] {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.recentReports)
}

func NewRecentMemoryReporter(reporter Reporter) *RecentReporter {
	return &RecentReporter{
		Reporter:      reporter,
		recentReports: []Report[any, any]{},
	}
}

func genericReport[IN, OUT any](r Report[IN, OUT]) Report[any, any] {
	return Report[any, any]{
		ID:                    r.ID,
		Def:                   r.Def,
		Output:                r.Output,
		Input:                 r.Input,
		Timestamp:             r.Timestamp,
		Err:                   r.Err,
		ChildOperationReports: r.ChildOperationReports,
	}
}

// typeReport converts a stored report back to its typed form. Input and output are re-encoded
// into IN and OUT, since a stored report may hold raw JSON (sqlreporter) or values decoded
// without type information. A request tree comes back as a *dmr.ModelNode in its wire order.
func typeReport[IN, OUT any](r Report[any, any]) (Report[IN, OUT], bool) {
	input, ok := retype[IN](r.Input)
	if !ok {
		return Report[IN, OUT]{}, false
	}
	output, ok := retype[OUT](r.Output)
	if !ok {
		return Report[IN, OUT]{}, false
	}

	return Report[IN, OUT]{
		ID:                    r.ID,
		Def:                   r.Def,
		Output:                output,
		Input:                 input,
		Timestamp:             r.Timestamp,
		Err:                   r.Err,
		ChildOperationReports: r.ChildOperationReports,
	}, true
}

func retype[T any](v any) (T, bool) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}

	return out, true
}
