package operations

import (
	"errors"
	"fmt"

	"github.com/hal-console/dmr-framework/dmr"
)

// ErrEmptyComposite is returned when a composite without steps is executed.
var ErrEmptyComposite = errors.New("composite has no steps")

// Outcome is the serializable result of a dispatched management request.
type Outcome struct {
	Outcome            string         `json:"outcome"`
	Result             *dmr.ModelNode `json:"result,omitempty"`
	FailureDescription string         `json:"failureDescription,omitempty"`
	RolledBack         bool           `json:"rolledBack,omitempty"`
	// Steps holds the per-step outcomes of a composite request, in step order.
	Steps []StepOutcome `json:"steps,omitempty"`
}

// StepOutcome is the result of one step of a composite request.
type StepOutcome struct {
	// Step is the step number, counting from 1.
	Step               int            `json:"step"`
	Outcome            string         `json:"outcome"`
	Result             *dmr.ModelNode `json:"result,omitempty"`
	FailureDescription string         `json:"failureDescription,omitempty"`
}

// Succeeded reports whether the request outcome is success.
func (o Outcome) Succeeded() bool { return o.Outcome == dmr.Success }

func newOutcome(res *dmr.Response, composite bool) (Outcome, error) {
	out := Outcome{
		Outcome:            res.Outcome,
		FailureDescription: res.Description(),
		RolledBack:         res.RolledBack,
	}
	if !composite {
		if res.Result.IsDefined() {
			out.Result = res.Result
		}

		return out, nil
	}

	steps, err := dmr.NewCompositeResult(res)
	if err != nil {
		return out, err
	}
	for i, step := range steps.All() {
		so := StepOutcome{Step: i, Outcome: step.Outcome, FailureDescription: step.Description()}
		if step.Result.IsDefined() {
			so.Result = step.Result
		}
		out.Steps = append(out.Steps, so)
	}

	return out, nil
}

// dispatchRequest is the handler behind ExecuteRequest. The input is the request tree, so
// retries and cached reports work on the wire form.
func dispatchRequest(b Bundle, req *dmr.ModelNode) (Outcome, error) {
	s, err := dmr.FromModelNode(req)
	if err != nil {
		return Outcome{}, NewUnrecoverableError(err)
	}

	res, err := b.Dispatch(s)
	if res == nil {
		return Outcome{}, err
	}
	out, perr := newOutcome(res, s.Name() == dmr.CompositeOperation)
	if perr != nil {
		return out, NewUnrecoverableError(errors.Join(err, fmt.Errorf("read %s response: %w", s.Name(), perr)))
	}

	return out, err
}

// ExecuteRequest dispatches req as an operation identified by def and records the request tree
// and the server outcome in a report.
//
// A failed outcome yields an error wrapping *dmr.FailureError while the returned report still
// carries the outcome, including the per-step results of a composite.
func ExecuteRequest(
	b Bundle, def Definition, req dmr.Submittable, opts ...ExecuteOption[*dmr.ModelNode],
) (Report[*dmr.ModelNode, Outcome], error) {
	op := NewOperation(def.ID, def.Version, def.Description, dispatchRequest)

	return ExecuteOperation(b, op, req.ModelNode(), opts...)
}

// ExecuteComposite is ExecuteRequest for composites. An empty composite is rejected before
// anything is dispatched.
func ExecuteComposite(
	b Bundle, def Definition, c *dmr.Composite, opts ...ExecuteOption[*dmr.ModelNode],
) (Report[*dmr.ModelNode, Outcome], error) {
	if c == nil || c.IsEmpty() {
		return Report[*dmr.ModelNode, Outcome]{}, fmt.Errorf("composite %s: %w", def.ID, ErrEmptyComposite)
	}

	return ExecuteRequest(b, def, c, opts...)
}
