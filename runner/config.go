// Package runner loads pipeline definitions from YAML and drives the engine
// end to end: source tables in, hierarchy built, chains executed, widgets
// data persisted.
package runner

import (
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/ecodata/edk"
)

// HierarchyConfig is the hierarchy section of a pipeline definition.
type HierarchyConfig struct {
	Table             string      `yaml:"table"`
	IDColumn          string      `yaml:"idColumn"`
	PlaceholderPolicy string      `yaml:"placeholderPolicy"`
	Levels            []edk.Level `yaml:"levels"`
}

// Builder converts the config into a hierarchy builder.
func (c *HierarchyConfig) Builder() (*edk.Builder, error) {
	policy := edk.MergePlaceholders
	switch c.PlaceholderPolicy {
	case "", string(edk.MergePlaceholders):
	case string(edk.DistinctPlaceholders):
		policy = edk.DistinctPlaceholders
	default:
		return nil, errors.Errorf("unknown placeholderPolicy '%s'", c.PlaceholderPolicy)
	}
	if len(c.Levels) == 0 {
		return nil, errors.New("hierarchy has no levels")
	}
	return &edk.Builder{
		Levels:   c.Levels,
		IDColumn: c.IDColumn,
		Policy:   policy,
	}, nil
}

// SourceConfig points a non-hierarchy group at its entity reference table.
type SourceConfig struct {
	Table       string `yaml:"table"`
	IDColumn    string `yaml:"idColumn"`
	LabelColumn string `yaml:"labelColumn"`
}

// StepConfig is one chain entry as written in YAML.
type StepConfig struct {
	OutputKey string                 `yaml:"outputKey"`
	Kind      string                 `yaml:"kind"`
	Plugin    string                 `yaml:"plugin"`
	Params    map[string]interface{} `yaml:"params"`
}

// GroupConfig defines the entity group and its transform chain.
type GroupConfig struct {
	GroupBy string        `yaml:"groupBy"`
	Source  *SourceConfig `yaml:"source"`
	Chain   []StepConfig  `yaml:"chain"`
}

// PipelineConfig is a full pipeline definition.
type PipelineConfig struct {
	Hierarchy *HierarchyConfig `yaml:"hierarchy"`
	Group     GroupConfig      `yaml:"group"`
}

// ParseConfig decodes a YAML pipeline definition. Step parameters come out
// normalized and with reference strings parsed, so a returned config is
// ready to hand to the orchestrator.
func ParseConfig(data []byte) (*PipelineConfig, error) {
	cfg := &PipelineConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decoding pipeline yaml")
	}
	for i, step := range cfg.Group.Chain {
		params, err := normalizeMap(step.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "step '%s'", step.OutputKey)
		}
		parsed, err := edk.ParseParams(params)
		if err != nil {
			return nil, errors.Wrapf(err, "step '%s'", step.OutputKey)
		}
		cfg.Group.Chain[i].Params = parsed
	}
	return cfg, nil
}

// ReadConfig decodes a YAML pipeline definition from r.
func ReadConfig(r io.Reader) (*PipelineConfig, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading pipeline config")
	}
	return ParseConfig(data)
}

// EngineGroup converts the group section into the engine's representation.
func (c *PipelineConfig) EngineGroup() *edk.Group {
	g := &edk.Group{GroupBy: c.Group.GroupBy}
	for _, step := range c.Group.Chain {
		g.Chain = append(g.Chain, edk.Step{
			OutputKey: step.OutputKey,
			Kind:      edk.Kind(step.Kind),
			Plugin:    step.Plugin,
			Params:    step.Params,
		})
	}
	return g
}

// normalizeMap rewrites the map[interface{}]interface{} values yaml.v2
// produces for nested mappings into map[string]interface{} throughout.
func normalizeMap(m map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, errors.Errorf("non-string parameter key %v", k)
			}
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[ks] = ne
		}
		return out, nil
	case map[string]interface{}:
		return normalizeMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	default:
		return v, nil
	}
}
