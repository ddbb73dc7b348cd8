package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

type yamlPlan struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	Headers     yaml.Node  `yaml:"headers"`
	Steps       []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	Address   string    `yaml:"address"`
	Operation string    `yaml:"operation"`
	Params    yaml.Node `yaml:"params"`
	Headers   yaml.Node `yaml:"headers"`
	Roles     []string  `yaml:"roles"`
}

// tablePlan is the shape of JSON and TOML plans. Both decode objects into unordered maps.
type tablePlan struct {
	Name        string         `json:"name"        toml:"name"`
	Version     string         `json:"version"     toml:"version"`
	Description string         `json:"description" toml:"description"`
	Headers     map[string]any `json:"headers"     toml:"headers"`
	Steps       []tableStep    `json:"steps"       toml:"steps"`
}

type tableStep struct {
	Address   string         `json:"address"   toml:"address"`
	Operation string         `json:"operation" toml:"operation"`
	Params    map[string]any `json:"params"    toml:"params"`
	Headers   map[string]any `json:"headers"   toml:"headers"`
	Roles     []string       `json:"roles"     toml:"roles"`
}

func parseYAML(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw yamlPlan
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &Plan{}, nil
		}

		return nil, err
	}

	headers, err := yamlParams(&raw.Headers)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	p := &Plan{
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		Headers:     headers,
	}
	for i, s := range raw.Steps {
		params, err := yamlParams(&s.Params)
		if err != nil {
			return nil, &StepError{Step: i + 1, Operation: s.Operation, Err: fmt.Errorf("params: %w", err)}
		}
		stepHeaders, err := yamlParams(&s.Headers)
		if err != nil {
			return nil, &StepError{Step: i + 1, Operation: s.Operation, Err: fmt.Errorf("headers: %w", err)}
		}
		p.Steps = append(p.Steps, Step{
			Address:   s.Address,
			Operation: s.Operation,
			Params:    params,
			Headers:   stepHeaders,
			Roles:     s.Roles,
		})
	}

	return p, nil
}

// yamlParams reads a mapping node in document order. An absent or null node has no params.
func yamlParams(node *yaml.Node) ([]Param, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil, nil
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	params := make([]Param, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: expected a scalar key", key.Line)
		}
		v, err := yamlValue(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key.Value, err)
		}
		params = append(params, Param{Name: key.Value, Value: v})
	}

	return params, nil
}

func parseJSON(data []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var raw tablePlan
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return &Plan{}, nil
		}

		return nil, err
	}

	return raw.plan()
}

func parseTOML(data []byte) (*Plan, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw tablePlan
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return raw.plan()
}

func (t tablePlan) plan() (*Plan, error) {
	headers, err := sortedParams(t.Headers)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	p := &Plan{
		Name:        t.Name,
		Version:     t.Version,
		Description: t.Description,
		Headers:     headers,
	}
	for i, s := range t.Steps {
		params, err := sortedParams(s.Params)
		if err != nil {
			return nil, &StepError{Step: i + 1, Operation: s.Operation, Err: fmt.Errorf("params: %w", err)}
		}
		stepHeaders, err := sortedParams(s.Headers)
		if err != nil {
			return nil, &StepError{Step: i + 1, Operation: s.Operation, Err: fmt.Errorf("headers: %w", err)}
		}
		p.Steps = append(p.Steps, Step{
			Address:   s.Address,
			Operation: s.Operation,
			Params:    params,
			Headers:   stepHeaders,
			Roles:     s.Roles,
		})
	}

	return p, nil
}

func sortedParams(m map[string]any) ([]Param, error) {
	if len(m) == 0 {
		return nil, nil
	}

	names := maps.Keys(m)
	slices.Sort(names)
	params := make([]Param, 0, len(m))
	for _, name := range names {
		v, err := normalize(m[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		params = append(params, Param{Name: name, Value: v})
	}

	return params, nil
}
