package operations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

// ErrNoDispatcher is returned when a Bundle without a Dispatcher is asked to submit a request.
var ErrNoDispatcher = errors.New("bundle has no dispatcher")

// ErrNoResponse is returned when a Dispatcher reports neither a response nor an error.
var ErrNoResponse = errors.New("dispatcher returned no response")

// Dispatcher submits management requests to a server.
//
// A response whose outcome is failed is not a transport error: implementations return it with a
// nil error and leave the interpretation to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dmr.Submittable) (*dmr.Response, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, req dmr.Submittable) (*dmr.Response, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, req dmr.Submittable) (*dmr.Response, error) {
	return f(ctx, req)
}

// Bundle contains the dependencies required by Operations API and is passed to the OperationHandler and SequenceHandler.
// It contains the Logger, Reporter, Dispatcher and the context.
// Use NewBundle to create a new Bundle.
type Bundle struct {
	Logger     logger.Logger
	GetContext func() context.Context
	reporter   Reporter
	dispatcher Dispatcher
	// internal use only, caches the hash of stored reports by report ID.
	reportHashCache   *sync.Map
	OperationRegistry *OperationRegistry
}

// BundleOption is a functional option for configuring a Bundle
type BundleOption func(*Bundle)

// WithOperationRegistry sets a custom OperationRegistry for the Bundle
func WithOperationRegistry(registry *OperationRegistry) BundleOption {
	return func(b *Bundle) {
		b.OperationRegistry = registry
	}
}

// NewBundle creates and returns a new Bundle. The dispatcher may be nil for bundles that only
// run operations without management side effects.
func NewBundle(
	getContext func() context.Context, lggr logger.Logger, reporter Reporter, dispatcher Dispatcher, opts ...BundleOption,
) Bundle {
	b := Bundle{
		Logger:            lggr,
		GetContext:        getContext,
		reporter:          reporter,
		dispatcher:        dispatcher,
		reportHashCache:   &sync.Map{},
		OperationRegistry: NewOperationRegistry(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// Reporter returns the reporter the bundle records reports in.
func (b Bundle) Reporter() Reporter {
	return b.reporter
}

// Dispatch submits req through the bundle dispatcher.
//
// A failed outcome is returned together with the response as an unrecoverable error wrapping a
// *dmr.FailureError, so retries stop at the first server-side failure. Transport errors are
// returned as is and may be retried.
func (b Bundle) Dispatch(req dmr.Submittable) (*dmr.Response, error) {
	if b.dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if cli, err := req.AsCli(); err == nil {
		b.Logger.Debugw("Dispatching request", "operation", req.Name(), "address", req.Address().String(), "cli", cli)
	}

	res, err := b.dispatcher.Dispatch(b.GetContext(), req)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", req.Name(), err)
	}
	if res == nil {
		return nil, fmt.Errorf("dispatch %s: %w", req.Name(), ErrNoResponse)
	}
	if ferr := res.Err(); ferr != nil {
		b.Logger.Warnw("Request failed", "operation", req.Name(), "error", ferr)
		return res, NewUnrecoverableError(ferr)
	}

	return res, nil
}

// OperationHandler is the function signature of an operation handler.
type OperationHandler[IN, OUT any] func(b Bundle, input IN) (output OUT, err error)

// Definition is the metadata for a sequence or an operation.
// It contains the ID, version and description.
// Two reports belong to the same task when their definitions are equal.
type Definition struct {
	ID          string          `json:"id"`
	Version     *semver.Version `json:"version"`
	Description string          `json:"description"`
}

// Operation is the low level building block of the Operations API: a named, versioned
// management task with typed input and output.
// Each operation should submit at most one management request (a single operation or a
// composite).
// Use NewOperation to create a new operation.
type Operation[IN, OUT any] struct {
	def     Definition
	handler OperationHandler[IN, OUT]
}

// ID returns the operation ID.
func (o *Operation[IN, OUT]) ID() string {
	return o.def.ID
}

// Version returns the operation semver version in string.
func (o *Operation[IN, OUT]) Version() string {
	return o.def.Version.String()
}

// Description returns the operation description.
func (o *Operation[IN, OUT]) Description() string {
	return o.def.Description
}

// Def returns the operation definition.
func (o *Operation[IN, OUT]) Def() Definition {
	return o.def
}

// execute runs the operation by calling the OperationHandler.
func (o *Operation[IN, OUT]) execute(b Bundle, input IN) (output OUT, err error) {
	b.Logger.Infow("Executing operation",
		"id", o.def.ID, "version", o.def.Version, "description", o.def.Description)

	return o.handler(b, input)
}

// AsUntyped converts the operation to an untyped operation.
// This is useful for storing operations in a registry or passing them around without type constraints.
// Warning: The input and output types will be converted to `any`, so type safety is lost.
func (o *Operation[IN, OUT]) AsUntyped() *Operation[any, any] {
	return &Operation[any, any]{
		def: o.def,
		handler: func(b Bundle, input any) (any, error) {
			var typedInput IN
			if input != nil {
				var ok bool
				if typedInput, ok = input.(IN); !ok {
					return nil, fmt.Errorf("input type mismatch: got %T", input)
				}
			}

			return o.handler(b, typedInput)
		},
	}
}

// NewOperation creates a new operation.
// Version can be created using semver.MustParse("1.0.0") or semver.New("1.0.0").
func NewOperation[IN, OUT any](
	id string, version *semver.Version, description string, handler OperationHandler[IN, OUT],
) *Operation[IN, OUT] {
	return &Operation[IN, OUT]{
		def: Definition{
			ID:          id,
			Version:     version,
			Description: description,
		},
		handler: handler,
	}
}

// EmptyInput is a placeholder for operations that do not require input.
type EmptyInput struct{}
