// Package plan reads declarative management plans: an ordered list of operations with their
// parameters and headers, kept in a YAML, JSON or TOML file, and turns them into a single
// dmr.Operation or a dmr.Composite.
//
// A YAML plan looks like this:
//
//	name: ee-isolation
//	headers:
//	  rollback-on-runtime-failure: true
//	steps:
//	  - address: /subsystem=ee
//	    operation: write-attribute
//	    params:
//	      name: ear-subdeployments-isolated
//	      value: true
//
// Parameter and header order follows the file for YAML. JSON and TOML objects are unordered,
// so their parameters are sorted by name.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations"
)

// Format is the encoding of a plan file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

const defaultVersion = "1.0.0"

var (
	ErrEmptyPlan     = errors.New("plan has no steps")
	ErrUnknownFormat = errors.New("unknown plan format")
	ErrInvalidHeader = errors.New("composite header must be a boolean or a scalar")
)

// StepError reports a step that cannot be turned into an operation.
type StepError struct {
	// Step is the step number, counting from 1.
	Step      int
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("step %d: %v", e.Step, e.Err)
	}

	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Operation, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Param is a named value. Values are anything dmr.FromValue accepts.
type Param struct {
	Name  string
	Value any
}

// Step is one operation of a plan.
type Step struct {
	Address   string
	Operation string
	Params    []Param
	Headers   []Param
	Roles     []string
}

// Plan is a decoded plan file.
type Plan struct {
	Name        string
	Version     string
	Description string
	// Headers are the operation headers of the composite.
	Headers []Param
	Steps   []Step
}

// FormatFromPath returns the format matching the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}

	return "", fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

// Load reads and parses the plan file at path, picking the format from the extension.
func Load(path string) (*Plan, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return p, nil
}

// Parse decodes a plan. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Plan, error) {
	var (
		p   *Plan
		err error
	)
	switch format {
	case FormatYAML:
		p, err = parseYAML(data)
	case FormatJSON:
		p, err = parseJSON(data)
	case FormatTOML:
		p, err = parseTOML(data)
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s plan: %w", format, err)
	}
	if len(p.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	return p, nil
}

// Definition identifies the plan as an operations task. The version defaults to 1.0.0.
func (p *Plan) Definition() (operations.Definition, error) {
	version := p.Version
	if version == "" {
		version = defaultVersion
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return operations.Definition{}, fmt.Errorf("plan %s version: %w", p.Name, err)
	}

	return operations.Definition{ID: p.Name, Version: v, Description: p.Description}, nil
}

// Operations builds the operation of every step, in order.
func (p *Plan) Operations() ([]*dmr.Operation, error) {
	ops := make([]*dmr.Operation, 0, len(p.Steps))
	for i, step := range p.Steps {
		op, err := step.build()
		if err != nil {
			return nil, &StepError{Step: i + 1, Operation: step.Operation, Err: err}
		}
		ops = append(ops, op)
	}

	return ops, nil
}

// Submittable returns the request of the plan: the operation itself for a single step without
// plan headers, a composite of all steps otherwise.
func (p *Plan) Submittable() (dmr.Submittable, error) {
	if len(p.Steps) == 0 {
		return nil, ErrEmptyPlan
	}
	ops, err := p.Operations()
	if err != nil {
		return nil, err
	}
	if len(ops) == 1 && len(p.Headers) == 0 {
		return ops[0], nil
	}

	return p.composite(ops)
}

// Composite returns the composite of all steps, even for a single step.
func (p *Plan) Composite() (*dmr.Composite, error) {
	if len(p.Steps) == 0 {
		return nil, ErrEmptyPlan
	}
	ops, err := p.Operations()
	if err != nil {
		return nil, err
	}

	return p.composite(ops)
}

func (p *Plan) composite(ops []*dmr.Operation) (*dmr.Composite, error) {
	steps := make([]dmr.Submittable, len(ops))
	for i, op := range ops {
		steps[i] = op
	}
	c, err := dmr.NewCompositeFrom(steps)
	if err != nil {
		return nil, err
	}
	for _, h := range p.Headers {
		if v, ok := h.Value.(bool); ok {
			c.AddBoolHeader(h.Name, v)
			continue
		}
		s, err := headerString(h.Value)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", h.Name, err)
		}
		c.AddHeader(h.Name, s)
	}

	return c, nil
}

// headerString renders a scalar composite header value. Lists, objects and undefined values are
// rejected.
func headerString(v any) (string, error) {
	n, err := dmr.FromValue(v)
	if err != nil {
		return "", err
	}
	switch n.Type() {
	case dmr.TypeList, dmr.TypeObject, dmr.TypeProperty, dmr.TypeUndefined:
		return "", fmt.Errorf("%s value: %w", n.Type(), ErrInvalidHeader)
	}

	return n.AsString()
}

func (s Step) build() (*dmr.Operation, error) {
	address, err := dmr.ParseResourceAddress(s.Address)
	if err != nil {
		return nil, err
	}
	b := dmr.NewOperationBuilder(address, s.Operation)
	for _, param := range s.Params {
		b.Param(param.Name, param.Value)
	}
	for _, header := range s.Headers {
		b.Header(header.Name, header.Value)
	}
	if len(s.Roles) > 0 {
		b.RunAs(s.Roles...)
	}

	return b.Build()
}
