package operations

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal-console/dmr-framework/pkg/logger"
)

// fastRetry keeps retrying tests quick.
var fastRetry = RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

func Test_ExecuteOperation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		options           []ExecuteOption[int]
		IsUnrecoverable   bool
		wantOpCalledTimes int
		wantOutput        int
		wantErr           string
	}{
		{
			name:              "no retry",
			wantOpCalledTimes: 1,
			wantErr:           "connection refused",
		},
		{
			name: "with default retry",
			options: []ExecuteOption[int]{
				WithRetry[int](),
			},
			wantOpCalledTimes: 3,
			wantOutput:        2,
		},
		{
			name: "with custom retry eventual success",
			options: []ExecuteOption[int]{
				WithRetryConfig(RetryConfig[int]{Enabled: true, Policy: RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}}),
			},
			wantOpCalledTimes: 3,
			wantOutput:        2,
		},
		{
			name: "with custom retry eventual failure",
			options: []ExecuteOption[int]{
				WithRetryConfig(RetryConfig[int]{Enabled: true, Policy: RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}}),
			},
			wantOpCalledTimes: 2,
			wantErr:           "connection refused",
		},
		{
			name: "input hook",
			options: []ExecuteOption[int]{
				WithRetryConfig(RetryConfig[int]{
					Enabled: true,
					Policy:  fastRetry,
					InputHook: func(attempt uint, err error, input int) int {
						// raise the timeout after every failed attempt
						return input + 10
					},
				}),
			},
			wantOpCalledTimes: 3,
			wantOutput:        22,
		},
		{
			name:              "unrecoverable error",
			options:           []ExecuteOption[int]{WithRetry[int]()},
			IsUnrecoverable:   true,
			wantOpCalledTimes: 1,
			wantErr:           "WFLYCTL0216",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			failTimes := 2
			handlerCalledTimes := 0
			handler := func(b Bundle, timeout int) (int, error) {
				handlerCalledTimes++
				if tt.IsUnrecoverable {
					return 0, NewUnrecoverableError(errors.New("WFLYCTL0216: Management resource not found"))
				}
				if failTimes > 0 {
					failTimes--
					return 0, errors.New("connection refused")
				}

				return timeout + 1, nil
			}
			op := NewOperation("reload", semver.MustParse("1.0.0"), "reload the server", handler)
			b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

			res, err := ExecuteOperation(b, op, 1, tt.options...)

			if tt.wantErr != "" {
				require.Error(t, res.Err)
				require.ErrorContains(t, res.Err, tt.wantErr)
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.Nil(t, res.Err)
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, res.Output)
			}
			assert.Equal(t, tt.wantOpCalledTimes, handlerCalledTimes)

			report, err := b.reporter.GetReport(res.ID)
			require.NoError(t, err)
			assert.Equal(t, op.Def(), report.Def)
		})
	}
}

func Test_ExecuteOperation_KeepsLastOutputOnFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	op := NewOperation("write", semver.MustParse("1.0.0"), "write attribute",
		func(b Bundle, input string) (string, error) {
			attempts++
			return "attempt-" + input, errors.New("rejected")
		})
	b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

	res, err := ExecuteOperation(b, op, "x", WithRetryConfig(RetryConfig[string]{Enabled: true, Policy: fastRetry}))
	require.EqualError(t, err, "rejected")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "attempt-x", res.Output)
}

func Test_ExecuteOperation_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	op := NewOperation("read", semver.MustParse("1.0.0"), "read resource",
		func(b Bundle, input int) (int, error) {
			calls++
			return 0, errors.New("timeout")
		})
	b := NewBundle(func() context.Context { return ctx }, logger.Test(t), NewMemoryReporter(), nil)

	_, err := ExecuteOperation(b, op, 1, WithRetryConfig(RetryConfig[int]{
		Enabled: true,
		Policy:  RetryPolicy{MaxAttempts: 10, Delay: time.Second},
	}))
	require.Error(t, err)
	assert.Less(t, calls, 10)
}

func Test_ExecuteOperation_ErrorReporter(t *testing.T) {
	t.Parallel()

	op := NewOperation("read", semver.MustParse("1.0.0"), "read resource",
		func(b Bundle, input int) (int, error) {
			return input + 1, nil
		})

	reportErr := errors.New("add report error")
	errReporter := errorReporter{
		Reporter:       NewMemoryReporter(),
		AddReportError: reportErr,
	}
	b := NewBundle(context.Background, logger.Test(t), errReporter, nil)

	res, err := ExecuteOperation(b, op, 1)
	require.ErrorIs(t, err, reportErr)
	require.Nil(t, res.Err)
}

func Test_ExecuteOperation_WithCachedResult(t *testing.T) {
	t.Parallel()

	handlerCalledTimes := 0
	handler := func(b Bundle, input int) (int, error) {
		handlerCalledTimes++
		return input + 1, nil
	}
	handlerWithErrorCalledTimes := 0
	handlerWithError := func(b Bundle, input int) (int, error) {
		handlerWithErrorCalledTimes++
		return 0, NewUnrecoverableError(errors.New("rejected"))
	}

	op := NewOperation("plus1", semver.MustParse("1.0.0"), "test operation", handler)
	opWithError := NewOperation("plus1-error", semver.MustParse("1.0.0"), "test operation error", handlerWithError)
	reporter := NewMemoryReporter()
	b := NewBundle(t.Context, logger.Test(t), reporter, nil)
	cached := WithCachedResult[int]()

	// first run
	first, err := ExecuteOperation(b, op, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Output)
	assert.Equal(t, 1, handlerCalledTimes)

	// rerun returns the previous report
	res, err := ExecuteOperation(b, op, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.ID)
	assert.Equal(t, 2, res.Output)
	assert.Equal(t, 1, handlerCalledTimes)

	// without the option the operation runs again
	res, err = ExecuteOperation(b, op, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, res.ID)
	assert.Equal(t, 2, handlerCalledTimes)

	// different input
	res, err = ExecuteOperation(b, op, 3, cached)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Output)
	assert.Equal(t, 3, handlerCalledTimes)

	// different definition
	op = NewOperation("plus1", semver.MustParse("2.0.0"), "test operation", handler)
	_, err = ExecuteOperation(b, op, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, 4, handlerCalledTimes)

	// failed runs are never reused
	for i := 1; i <= 2; i++ {
		res, err = ExecuteOperation(b, opWithError, 1, cached)
		require.ErrorContains(t, err, "rejected")
		require.ErrorContains(t, res.Err, "rejected")
		assert.Equal(t, i, handlerWithErrorCalledTimes)
	}

	reports, err := reporter.GetReports()
	require.NoError(t, err)
	assert.Len(t, reports, 6)
}

func Test_ExecuteOperation_Unserializable_Data(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     any
		output    any
		wantError string
	}{
		{
			name:   "both input and output are serializable",
			input:  map[string]any{"name": "ear-subdeployments-isolated", "value": true},
			output: 2,
		},
		{
			name:      "input is serializable, output is not",
			input:     1,
			output:    func() bool { return true },
			wantError: "operation example output: data cannot be safely written to a report without data loss, avoid types that can't be serialized",
		},
		{
			name: "input is not serializable, output is",
			input: struct {
				A            int
				privateField string
			}{
				A:            1,
				privateField: "private",
			},
			output:    2,
			wantError: "operation example input: data cannot be safely written to a report without data loss, avoid types that can't be serialized",
		},
		{
			name:      "NaN input",
			input:     math.NaN(),
			output:    2,
			wantError: "operation example input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op := NewOperation("example", semver.MustParse("1.0.0"), "test operation",
				func(b Bundle, input any) (any, error) {
					return tt.output, nil
				})

			b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

			res, err := ExecuteOperation(b, op, tt.input)
			if tt.wantError != "" {
				require.ErrorIs(t, err, ErrNotSerializable)
				require.ErrorContains(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
				require.Nil(t, res.Err)
			}
		})
	}
}

func Test_ExecuteSequence(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")

	tests := []struct {
		name            string
		simulateOpError bool
		wantOutput      int
		wantErr         string
	}{
		{
			name:       "Success Execution",
			wantOutput: 3,
		},
		{
			name:            "Error Execution",
			simulateOpError: true,
			wantErr:         "fatal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op := NewOperation("plus1", version, "plus 1",
				func(b Bundle, input int) (int, error) {
					if tt.simulateOpError {
						return 0, NewUnrecoverableError(errors.New("fatal error"))
					}

					return input + 1, nil
				})

			var opID string
			sequence := NewSequence("seq-plus1", version, "plus 1",
				func(b Bundle, input int) (int, error) {
					res, err := ExecuteOperation(b, op, input)
					// capture for verification later
					opID = res.ID
					if err != nil {
						return 0, err
					}

					return res.Output + 1, nil
				})

			b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

			seqReport, err := ExecuteSequence(b, sequence, 1)

			if tt.simulateOpError {
				require.Error(t, seqReport.Err)
				require.ErrorContains(t, seqReport.Err, tt.wantErr)
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.Nil(t, seqReport.Err)
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutput, seqReport.Output)
			}
			assert.Equal(t, []string{opID}, seqReport.ChildOperationReports)

			report, err := b.reporter.GetReport(seqReport.ID)
			require.NoError(t, err)
			require.Len(t, seqReport.ExecutionReports, 2) // 1 seq report + 1 op report

			childReport, err := b.reporter.GetReport(opID)
			require.NoError(t, err)
			assert.Equal(t, seqReport.ExecutionReports[0], childReport)
			assert.Equal(t, seqReport.ExecutionReports[1], report)
		})
	}
}

func Test_ExecuteSequence_WithCachedResult(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	op := NewOperation("plus1", version, "plus 1",
		func(b Bundle, input int) (int, error) {
			return input + 1, nil
		})

	handlerCalledTimes := 0
	handler := func(b Bundle, input int) (int, error) {
		handlerCalledTimes++
		res, err := ExecuteOperation(b, op, input, WithCachedResult[int]())
		if err != nil {
			return 0, err
		}

		return res.Output, nil
	}
	sequence := NewSequence("seq-plus1", version, "plus 1", handler)
	cached := WithCachedResult[int]()

	b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

	// first run
	res, err := ExecuteSequence(b, sequence, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Len(t, res.ExecutionReports, 2) // 1 seq report + 1 op report
	assert.Equal(t, 1, handlerCalledTimes)

	// rerun returns the previous report with its execution reports
	res, err = ExecuteSequence(b, sequence, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Len(t, res.ExecutionReports, 2)
	assert.Equal(t, 1, handlerCalledTimes)

	// a new sequence reuses the cached op report, which is then not one of its children
	sequence = NewSequence("seq-plus1-v2", semver.MustParse("2.0.0"), "plus 1", handler)
	res, err = ExecuteSequence(b, sequence, 1, cached)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Output)
	assert.Len(t, res.ExecutionReports, 1)
	assert.Equal(t, 2, handlerCalledTimes)

	// without the option the sequence runs again
	_, err = ExecuteSequence(b, sequence, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, handlerCalledTimes)
}

func Test_ExecuteSequence_ErrorReporter(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	op := NewOperation("plus1", version, "plus 1",
		func(b Bundle, input int) (int, error) {
			return input + 1, nil
		})

	sequence := NewSequence("seq-plus1", version, "plus 1",
		func(b Bundle, input int) (int, error) {
			res, err := ExecuteOperation(b, op, input)
			if err != nil {
				return 0, err
			}

			return res.Output + 1, nil
		})

	tests := []struct {
		name          string
		setupReporter func() Reporter
		options       []ExecuteOption[int]
		wantErr       string
	}{
		{
			name: "AddReport returns an error",
			setupReporter: func() Reporter {
				return errorReporter{
					Reporter:       NewMemoryReporter(),
					AddReportError: errors.New("add report error"),
				}
			},
			wantErr: "add report error",
		},
		{
			name: "GetExecutionReports returns an error",
			setupReporter: func() Reporter {
				return errorReporter{
					Reporter:                 NewMemoryReporter(),
					GetExecutionReportsError: errors.New("get execution reports error"),
				}
			},
			wantErr: "get execution reports error",
		},
		{
			name: "Loaded previous report but GetExecutionReports returns an error",
			setupReporter: func() Reporter {
				r := errorReporter{
					Reporter:                 NewMemoryReporter(),
					GetExecutionReportsError: errors.New("get execution reports error"),
				}
				err := r.AddReport(genericReport(
					NewReport(sequence.def, 1, 2, nil),
				))
				require.NoError(t, err)

				return r
			},
			options: []ExecuteOption[int]{WithCachedResult[int]()},
			wantErr: "get execution reports error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBundle(context.Background, logger.Test(t), tt.setupReporter(), nil)
			_, err := ExecuteSequence(b, sequence, 1, tt.options...)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func Test_ExecuteSequence_Unserializable_Data(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")
	op := NewOperation("test", version, "test description",
		func(b Bundle, input any) (any, error) {
			return 1, nil
		})

	tests := []struct {
		name      string
		input     any
		output    any
		wantError string
	}{
		{
			name:   "both input and output are serializable",
			input:  1,
			output: 2,
		},
		{
			name:      "input is serializable, output is not",
			input:     1,
			output:    make(chan int),
			wantError: "sequence seq-example output: data cannot be safely written to a report without data loss, avoid types that can't be serialized",
		},
		{
			name: "input is not serializable, output is",
			input: struct {
				A            int
				privateField string
			}{
				A:            1,
				privateField: "private",
			},
			output:    2,
			wantError: "sequence seq-example input: data cannot be safely written to a report without data loss, avoid types that can't be serialized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sequence := NewSequence("seq-example", version, "test operation",
				func(b Bundle, _ any) (any, error) {
					if _, err := ExecuteOperation(b, op, any(1)); err != nil {
						return 0, err
					}

					return tt.output, nil
				})

			b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)

			res, err := ExecuteSequence(b, sequence, tt.input)
			if tt.wantError != "" {
				require.ErrorContains(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
				require.Nil(t, res.Err)
			}
		})
	}
}

func Test_loadPreviousSuccessfulReport(t *testing.T) {
	t.Parallel()

	definition := Definition{
		ID:          "plus1",
		Version:     semver.MustParse("1.0.0"),
		Description: "plus 1",
	}

	tests := []struct {
		name          string
		setupReporter func() Reporter
		input         float64
		wantFound     bool
	}{
		{
			name: "Failed to GetReports",
			setupReporter: func() Reporter {
				return errorReporter{GetReportsError: errors.New("failed to get reports")}
			},
			input: 1,
		},
		{
			name: "Successful Report found - return report",
			setupReporter: func() Reporter {
				r := NewMemoryReporter()
				require.NoError(t, r.AddReport(genericReport(NewReport(definition, 1.0, 2, nil))))

				return r
			},
			input:     1,
			wantFound: true,
		},
		{
			name: "Report with error found - ignore report",
			setupReporter: func() Reporter {
				r := NewMemoryReporter()
				require.NoError(t, r.AddReport(genericReport(NewReport(definition, 1.0, 2, errors.New("failed")))))

				return r
			},
			input: 1,
		},
		{
			name:  "Report not found",
			input: 1,
		},
		{
			name:  "Current report with bad hash",
			input: math.NaN(),
		},
		{
			name: "Previous report with bad hash",
			setupReporter: func() Reporter {
				r := NewMemoryReporter()
				require.NoError(t, r.AddReport(genericReport(NewReport(definition, math.NaN(), 2, nil))))

				return r
			},
			input: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewBundle(context.Background, logger.Test(t), NewMemoryReporter(), nil)
			if tt.setupReporter != nil {
				b.reporter = tt.setupReporter()
			}

			report, found := loadPreviousSuccessfulReport[float64, int](b, definition, tt.input)
			assert.Equal(t, tt.wantFound, found)

			if tt.wantFound {
				assert.Equal(t, definition, report.Def)
				assert.InDelta(t, tt.input, report.Input, 0)
				assert.Equal(t, 2, report.Output)
			}
		})
	}
}

func Test_ExecuteSequence_Concurrent(t *testing.T) {
	t.Parallel()

	version := semver.MustParse("1.0.0")

	op := NewOperation("increment", version, "increment by 1",
		func(b Bundle, input int) (int, error) {
			return input + 1, nil
		})

	sequence := NewSequence("concurrent-seq", version, "concurrent sequence test",
		func(b Bundle, input int) (int, error) {
			res, err := ExecuteOperation(b, op, input)
			if err != nil {
				return 0, err
			}

			// Introduce a small delay to increase chance of race conditions
			time.Sleep(time.Millisecond)

			return res.Output, nil
		})

	reporter := NewMemoryReporter()
	b := NewBundle(context.Background, logger.Test(t), reporter, nil)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	type result struct {
		report SequenceReport[int, int]
		err    error
	}
	results := make(chan result, numGoroutines)

	for i := range numGoroutines {
		go func(input int) {
			defer wg.Done()

			report, err := ExecuteSequence(b, sequence, input)
			results <- result{report, err}
		}(i)
	}

	wg.Wait()
	close(results)

	for res := range results {
		require.NoError(t, res.err)
		require.Nil(t, res.report.Err)
		assert.Equal(t, res.report.Input+1, res.report.Output)
		assert.Len(t, res.report.ExecutionReports, 2)
	}

	allReports, err := reporter.GetReports()
	require.NoError(t, err)
	assert.Len(t, allReports, numGoroutines*2)
}

type errorReporter struct {
	Reporter
	GetReportError           error
	GetReportsError          error
	AddReportError           error
	GetExecutionReportsError error
}

func (e errorReporter) GetReport(id string) (Report[any, any], error) {
	if e.GetReportError != nil {
		return Report[any, any]{}, e.GetReportError
	}

	return e.Reporter.GetReport(id)
}

func (e errorReporter) GetReports() ([]Report[any, any], error) {
	if e.GetReportsError != nil {
		return nil, e.GetReportsError
	}

	return e.Reporter.GetReports()
}

func (e errorReporter) AddReport(report Report[any, any]) error {
	if e.AddReportError != nil {
		return e.AddReportError
	}

	return e.Reporter.AddReport(report)
}

func (e errorReporter) GetExecutionReports(id string) ([]Report[any, any], error) {
	if e.GetExecutionReportsError != nil {
		return nil, e.GetExecutionReportsError
	}

	return e.Reporter.GetExecutionReports(id)
}
