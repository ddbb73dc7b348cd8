package operations

import (
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

var ErrNotSerializable = errors.New("data cannot be safely written to a report without data loss, " +
	"avoid types that can't be serialized")

// ExecuteConfig is the configuration for the ExecuteOperation function.
type ExecuteConfig[IN any] struct {
	retryConfig RetryConfig[IN]
	cached      bool
}

type ExecuteOption[IN any] func(*ExecuteConfig[IN])

type RetryConfig[IN any] struct {
	// Enabled determines if the retry is enabled for the operation.
	Enabled bool

	// Policy is the retry policy to control the behavior of the retry.
	Policy RetryPolicy

	// InputHook is a function that returns an updated input before retrying the operation.
	// The operation when retried will use the input returned by this function.
	// This is useful for scenarios like raising the blocking-timeout header of a request.
	InputHook func(attempt uint, err error, input IN) IN
}

// newDisabledRetryConfig returns a default retry configuration that is initially disabled.
func newDisabledRetryConfig[IN any]() RetryConfig[IN] {
	return RetryConfig[IN]{
		Enabled: false,
		Policy:  DefaultRetryPolicy(),
	}
}

// RetryPolicy defines the arguments to control the retry behavior.
type RetryPolicy struct {
	MaxAttempts uint
	// Delay is the initial delay between attempts. It doubles after every attempt.
	// Zero keeps the retry-go default.
	Delay time.Duration
}

// DefaultRetryPolicy returns the policy used by WithRetry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

// options returns the 'avast/retry' functional options for the retry policy.
func (p RetryPolicy) options() []retry.Option {
	opts := []retry.Option{
		retry.Attempts(p.MaxAttempts),
		retry.LastErrorOnly(true),
	}
	if p.Delay > 0 {
		opts = append(opts, retry.Delay(p.Delay))
	}

	return opts
}

// WithRetry is an ExecuteOption that enables the default retry for the operation.
func WithRetry[IN any]() ExecuteOption[IN] {
	return func(c *ExecuteConfig[IN]) {
		c.retryConfig.Enabled = true
	}
}

// WithRetryInput is an ExecuteOption that enables the default retry and provide an input
// transform function which will modify the input on each retry attempt.
func WithRetryInput[IN any](inputHookFunc func(uint, error, IN) IN) ExecuteOption[IN] {
	return func(c *ExecuteConfig[IN]) {
		c.retryConfig.Enabled = true
		c.retryConfig.InputHook = inputHookFunc
	}
}

// WithRetryConfig is an ExecuteOption that sets the retry configuration. This provides a way to
// customize the retry behavior specific to the needs of the operation. Use this for the most
// flexibility and control over the retry behavior.
func WithRetryConfig[IN any](config RetryConfig[IN]) ExecuteOption[IN] {
	return func(c *ExecuteConfig[IN]) {
		c.retryConfig = config
	}
}

// WithCachedResult is an ExecuteOption that returns the report of a previous successful run
// with the same definition and input instead of executing again.
func WithCachedResult[IN any]() ExecuteOption[IN] {
	return func(c *ExecuteConfig[IN]) {
		c.cached = true
	}
}

func newExecuteConfig[IN any](opts []ExecuteOption[IN]) *ExecuteConfig[IN] {
	cfg := &ExecuteConfig[IN]{
		retryConfig: newDisabledRetryConfig[IN](),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// ExecuteOperation executes an operation with the given input.
//
// Caching:
// Management requests are not idempotent in general, so every call executes the operation unless
// WithCachedResult is given. With it, the report of a previous successful run with the same
// definition and input is returned and the operation is skipped. Skipped operations are not
// added to the reporter again.
//
// Retry:
// By default the operation is executed once. Use WithRetry or WithRetryConfig to retry failed
// attempts with exponential backoff. To cancel the retry early, return an error with
// NewUnrecoverableError. Failed management outcomes returned by Bundle.Dispatch are
// unrecoverable and never retried.
//
// Input & Output:
// The input and output must be JSON serializable. If the input is not serializable, it will return an error.
// To be serializable, the input and output must be json.marshalable, or it must implement json.Marshaler and json.Unmarshaler.
// IsSerializable can be used to check if the input or output is serializable.
func ExecuteOperation[IN, OUT any](
	b Bundle,
	operation *Operation[IN, OUT],
	input IN,
	opts ...ExecuteOption[IN],
) (Report[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s input: %w", operation.def.ID, ErrNotSerializable)
	}

	executeConfig := newExecuteConfig(opts)
	if executeConfig.cached {
		if previousReport, found := loadPreviousSuccessfulReport[IN, OUT](b, operation.def, input); found {
			b.Logger.Infow("Operation already executed. Returning previous result", "id", operation.def.ID,
				"version", operation.def.Version, "description", operation.def.Description)

			return previousReport, nil
		}
	}

	var output OUT
	var err error

	if executeConfig.retryConfig.Enabled {
		var inputTemp = input

		// Generate the configurable options for the retry
		retryOpts := executeConfig.retryConfig.Policy.options()
		// Use the operation context in the retry
		retryOpts = append(retryOpts, retry.Context(b.GetContext()))
		// Append the retry logic which will log the retry and attempt to transform the input
		// if the user provided a custom input hook.
		retryOpts = append(retryOpts, retry.OnRetry(func(attempt uint, err error) {
			b.Logger.Infow("Operation failed. Retrying...",
				"operation", operation.def.ID, "attempt", attempt, "error", err)

			if executeConfig.retryConfig.InputHook != nil {
				inputTemp = executeConfig.retryConfig.InputHook(attempt, err, inputTemp)
			}
		}))

		// The output of the last attempt is kept even when it failed, so the report carries the
		// per-step outcomes of a rejected composite.
		err = retry.Do(
			func() error {
				var attemptErr error
				output, attemptErr = operation.execute(b, inputTemp)

				return attemptErr
			},
			retryOpts...,
		)
	} else {
		output, err = operation.execute(b, input)
	}

	if err == nil && !IsSerializable(b.Logger, output) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s output: %w", operation.def.ID, ErrNotSerializable)
	}

	report := NewReport(operation.def, input, output, err)
	if aerr := b.reporter.AddReport(genericReport(report)); aerr != nil {
		return Report[IN, OUT]{}, aerr
	}

	if err != nil {
		return report, err
	}

	return report, nil
}

// ExecuteSequence executes a Sequence and returns a SequenceReport.
// The SequenceReport contains a report for the Sequence and also the execution reports which are all
// the operations that were executed as part of this sequence.
//
// Sequences honour WithCachedResult only; retries are configured on the operations the sequence runs.
// With WithCachedResult, a previous successful run with the same input is returned together with
// its execution reports and the sequence is skipped.
//
// Input & Output:
// The input and output must be JSON serializable. If the input is not serializable, it will return an error.
// IsSerializable can be used to check if the input or output is serializable.
func ExecuteSequence[IN, OUT any](
	b Bundle, sequence *Sequence[IN, OUT], input IN, opts ...ExecuteOption[IN],
) (SequenceReport[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return SequenceReport[IN, OUT]{}, fmt.Errorf("sequence %s input: %w", sequence.def.ID, ErrNotSerializable)
	}

	if newExecuteConfig(opts).cached {
		if previousReport, found := loadPreviousSuccessfulReport[IN, OUT](b, sequence.def, input); found {
			executionReports, err := b.reporter.GetExecutionReports(previousReport.ID)
			if err != nil {
				return SequenceReport[IN, OUT]{}, err
			}
			b.Logger.Infow("Sequence already executed. Returning previous result", "id", sequence.def.ID,
				"version", sequence.def.Version, "description", sequence.def.Description)

			return SequenceReport[IN, OUT]{previousReport, executionReports}, nil
		}
	}

	b.Logger.Infow("Executing sequence", "id", sequence.def.ID,
		"version", sequence.def.Version, "description", sequence.def.Description)
	recentReporter := NewRecentMemoryReporter(b.reporter)
	newBundle := Bundle{
		Logger:            b.Logger,
		GetContext:        b.GetContext,
		reporter:          recentReporter,
		dispatcher:        b.dispatcher,
		reportHashCache:   b.reportHashCache,
		OperationRegistry: b.OperationRegistry,
	}
	ret, err := sequence.handler(newBundle, input)
	if errors.Is(err, ErrNotSerializable) {
		return SequenceReport[IN, OUT]{}, err
	}

	if err == nil && !IsSerializable(b.Logger, ret) {
		return SequenceReport[IN, OUT]{}, fmt.Errorf("sequence %s output: %w", sequence.def.ID, ErrNotSerializable)
	}

	recentReports := recentReporter.GetRecentReports()
	childReports := make([]string, 0, len(recentReports))
	for _, rep := range recentReports {
		childReports = append(childReports, rep.ID)
	}

	report := NewReport(
		sequence.def,
		input,
		ret,
		err,
		childReports...,
	)

	if aerr := b.reporter.AddReport(genericReport(report)); aerr != nil {
		return SequenceReport[IN, OUT]{}, aerr
	}

	executionReports, rerr := b.reporter.GetExecutionReports(report.ID)
	if rerr != nil {
		return SequenceReport[IN, OUT]{}, rerr
	}

	if err != nil {
		return SequenceReport[IN, OUT]{report, executionReports}, err
	}

	return SequenceReport[IN, OUT]{report, executionReports}, nil
}

// NewUnrecoverableError creates an error that indicates an unrecoverable error.
// If this error is returned inside an operation, the operation will no longer retry.
// This allows the operation to fail fast if it encounters an unrecoverable error.
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}

func loadPreviousSuccessfulReport[IN, OUT any](
	b Bundle, def Definition, input IN,
) (Report[IN, OUT], bool) {
	prevReports, err := b.reporter.GetReports()
	if err != nil {
		b.Logger.Errorw("Failed to get reports", "error", err)
		return Report[IN, OUT]{}, false
	}
	currentHash, err := constructUniqueHashFrom(def, input)
	if err != nil {
		b.Logger.Errorw("Failed to construct unique hash", "error", err)
		return Report[IN, OUT]{}, false
	}

	for _, report := range prevReports {
		// Check if operation/sequence was run previously and return the report if successful
		h, err := reportHash(b.reportHashCache, report)
		if err != nil {
			b.Logger.Errorw("Failed to construct unique hash for previous report", "error", err)
			continue
		}
		if h == currentHash && report.Succeeded() {
			typedReport, ok := typeReport[IN, OUT](report)
			if !ok {
				b.Logger.Debugw(fmt.Sprintf("Previous %s execution found but couldn't find its matching Report", def.ID), "report_id", report.ID)
				continue
			}
			b.Logger.Debugw(fmt.Sprintf("Previous %s execution found. Returning its result from Report storage", def.ID), "report_id", report.ID)

			return typedReport, true
		}
	}

	// No previous execution was found
	return Report[IN, OUT]{}, false
}
