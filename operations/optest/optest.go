// Package optest provides utilities for operations testing.
package optest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/pkg/logger"
)

// NewBundle creates a new operations bundle for testing with a no-op logger, a memory reporter
// and a Dispatcher answering every request with success.
func NewBundle(t *testing.T) operations.Bundle {
	t.Helper()

	return NewBundleWith(t, NewDispatcher())
}

// NewBundleWith creates a new operations bundle for testing that dispatches through d.
func NewBundleWith(t *testing.T, d operations.Dispatcher) operations.Bundle {
	t.Helper()

	return operations.NewBundle(
		t.Context, logger.Nop(), operations.NewMemoryReporter(), d,
	)
}

// Success returns a response with outcome success and the given result, which may be nil.
func Success(result *dmr.ModelNode) *dmr.Response {
	return &dmr.Response{Outcome: dmr.Success, Result: result.Clone()}
}

// Failure returns a response with outcome failed.
func Failure(description string) *dmr.Response {
	return &dmr.Response{Outcome: dmr.Failed, FailureDescription: dmr.NewString(description)}
}

type scripted struct {
	res *dmr.Response
	err error
}

// Dispatcher is a scripted operations.Dispatcher. Answers are queued per operation name: each
// request takes the next queued answer and the last one is repeated. Operations without a
// script succeed with an undefined result.
//
// Composites without their own script are answered step by step, the way the server reports
// them: the result holds step-1, step-2, ... and the composite fails and rolls back when any step
// fails.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu       sync.Mutex
	scripts  map[string][]scripted
	requests []dmr.Submittable
}

var _ operations.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher without scripts.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{scripts: map[string][]scripted{}}
}

// On queues res as the answer to the next request for operation name.
func (d *Dispatcher) On(name string, res *dmr.Response) *Dispatcher {
	return d.queue(name, scripted{res: res})
}

// OnError queues a transport error for the next request for operation name.
func (d *Dispatcher) OnError(name string, err error) *Dispatcher {
	return d.queue(name, scripted{err: err})
}

func (d *Dispatcher) queue(name string, s scripted) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scripts[name] = append(d.scripts[name], s)

	return d
}

// Dispatch implements operations.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, req dmr.Submittable) (*dmr.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, req)

	return d.answer(req)
}

func (d *Dispatcher) answer(req dmr.Submittable) (*dmr.Response, error) {
	if s, ok := d.next(req.Name()); ok {
		if s.err != nil {
			return nil, s.err
		}

		return cloneResponse(s.res), nil
	}

	c, ok := req.(*dmr.Composite)
	if !ok {
		return Success(nil), nil
	}

	result := dmr.NewObject()
	var failed []string
	for i, step := range c.All() {
		res, err := d.answer(step)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("step-%d", i+1)
		result.Get(key).SetNode(res.ModelNode())
		if !res.Succeeded() {
			failed = append(failed, "Operation "+key)
		}
	}
	if len(failed) == 0 {
		return &dmr.Response{Outcome: dmr.Success, Result: result}, nil
	}

	return &dmr.Response{
		Outcome:            dmr.Failed,
		Result:             result,
		FailureDescription: dmr.NewString("Composite operation failed and was rolled back. Steps that failed: " + strings.Join(failed, ", ")),
		RolledBack:         true,
	}, nil
}

func (d *Dispatcher) next(name string) (scripted, bool) {
	queue := d.scripts[name]
	if len(queue) == 0 {
		return scripted{}, false
	}
	s := queue[0]
	if len(queue) > 1 {
		d.scripts[name] = queue[1:]
	}

	return s, true
}

// Requests returns every request dispatched so far, in order.
func (d *Dispatcher) Requests() []dmr.Submittable {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]dmr.Submittable(nil), d.requests...)
}

// Count returns the number of requests dispatched so far.
func (d *Dispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.requests)
}

func cloneResponse(r *dmr.Response) *dmr.Response {
	if r == nil {
		return Success(nil)
	}

	return &dmr.Response{
		Outcome:            r.Outcome,
		Result:             r.Result.Clone(),
		FailureDescription: r.FailureDescription.Clone(),
		RolledBack:         r.RolledBack,
		ResponseHeaders:    r.ResponseHeaders.Clone(),
	}
}
