package dmr

import (
	"fmt"
	"iter"
	"strconv"
)

// Response is the reply of the management endpoint to a single request.
type Response struct {
	Outcome            string
	Result             *ModelNode
	FailureDescription *ModelNode
	RolledBack         bool
	ResponseHeaders    *ModelNode
}

// ParseResponse reads a response tree.
func ParseResponse(n *ModelNode) (*Response, error) {
	if n.Type() != TypeObject {
		return nil, fmt.Errorf("response: %w", mismatch("parse response", TypeObject, n.Type()))
	}
	outcomeNode, ok := n.Lookup(Outcome)
	if !ok {
		return nil, fmt.Errorf("response has no %q: %w", Outcome, ErrTypeMismatch)
	}
	outcome, err := outcomeNode.AsString()
	if err != nil {
		return nil, fmt.Errorf("response %q: %w", Outcome, err)
	}

	r := &Response{
		Outcome:            outcome,
		Result:             child(n, Result),
		FailureDescription: child(n, FailureDescription),
		ResponseHeaders:    child(n, ResponseHeaders),
	}
	if rb, ok := n.Lookup(RolledBack); ok && rb.IsDefined() {
		if r.RolledBack, err = rb.AsBool(); err != nil {
			return nil, fmt.Errorf("response %q: %w", RolledBack, err)
		}
	}

	return r, nil
}

// DecodeResponse parses a DMR JSON response body.
func DecodeResponse(data []byte) (*Response, error) {
	n, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}

	return ParseResponse(n)
}

func child(n *ModelNode, key string) *ModelNode {
	if c, ok := n.Lookup(key); ok {
		return c.Clone()
	}

	return New()
}

// Succeeded reports whether the outcome is success.
func (r *Response) Succeeded() bool { return r.Outcome == Success }

// Description returns the failure description as text.
func (r *Response) Description() string {
	if !r.FailureDescription.IsDefined() {
		return ""
	}
	if s, err := r.FailureDescription.AsString(); err == nil {
		return s
	}

	return r.FailureDescription.String()
}

// Err returns a *FailureError when the outcome is not success.
func (r *Response) Err() error {
	if r.Succeeded() {
		return nil
	}

	return &FailureError{Description: r.Description(), RolledBack: r.RolledBack}
}

// ModelNode returns the response tree.
func (r *Response) ModelNode() *ModelNode {
	n := NewObject()
	n.Get(Outcome).SetString(r.Outcome)
	if r.Result.IsDefined() {
		n.Get(Result).SetNode(r.Result)
	}
	if r.FailureDescription.IsDefined() {
		n.Get(FailureDescription).SetNode(r.FailureDescription)
	}
	if r.RolledBack {
		n.Get(RolledBack).SetBool(true)
	}
	if r.ResponseHeaders.IsDefined() {
		n.Get(ResponseHeaders).SetNode(r.ResponseHeaders)
	}

	return n
}

// CompositeResult exposes the per-step responses of a composite request. Steps are numbered
// from 1, matching the step-1, step-2 keys of the result.
type CompositeResult struct {
	steps []*Response
}

// NewCompositeResult reads the step responses from the result of a composite response.
func NewCompositeResult(r *Response) (*CompositeResult, error) {
	cr := &CompositeResult{}
	if !r.Result.IsDefined() {
		return cr, nil
	}
	for i := 1; ; i++ {
		step, ok := r.Result.Lookup(stepKey(i))
		if !ok {
			break
		}
		sr, err := ParseResponse(step)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stepKey(i), err)
		}
		cr.steps = append(cr.steps, sr)
	}

	return cr, nil
}

func stepKey(i int) string { return "step-" + strconv.Itoa(i) }

func (cr *CompositeResult) Len() int { return len(cr.steps) }

// Step returns the response of step i, counting from 1.
func (cr *CompositeResult) Step(i int) (*Response, error) {
	if i < 1 || i > len(cr.steps) {
		return nil, fmt.Errorf("dmr: %s of %d: %w", stepKey(i), len(cr.steps), ErrIndexOutOfRange)
	}

	return cr.steps[i-1], nil
}

// All yields every step number with its response.
func (cr *CompositeResult) All() iter.Seq2[int, *Response] {
	return func(yield func(int, *Response) bool) {
		for i, r := range cr.steps {
			if !yield(i+1, r) {
				return
			}
		}
	}
}

// Failed returns the numbers of the steps whose outcome is not success.
func (cr *CompositeResult) Failed() []int {
	var failed []int
	for i, r := range cr.All() {
		if !r.Succeeded() {
			failed = append(failed, i)
		}
	}

	return failed
}
