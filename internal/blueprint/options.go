package blueprint

import (
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

type (
	// MachineOptions configures NewMachine. Only Provider is required.
	MachineOptions struct {
		Provider    string     `mapstructure:"provider"`
		Region      string     `mapstructure:"region"`
		Size        string     `mapstructure:"size"`
		CPU         spec.Range `mapstructure:"cpu"`
		RAM         spec.Range `mapstructure:"ram"` // GiB
		DiskSize    int        `mapstructure:"diskSize"`
		FloatingIP  string     `mapstructure:"floatingIp"`
		SSHKeys     []string   `mapstructure:"sshKeys"`
		Preemptible bool       `mapstructure:"preemptible"`
	}

	// ContainerOptions configures NewContainer.
	ContainerOptions struct {
		Command           []string              `mapstructure:"command"`
		Env               map[string]spec.Value `mapstructure:"env"`
		FilepathToContent map[string]spec.Value `mapstructure:"filepathToContent"`
	}

	// InfrastructureOptions configures NewInfrastructure.
	InfrastructureOptions struct {
		Namespace string   `mapstructure:"namespace"`
		AdminACL  []string `mapstructure:"adminACL"`
	}

	// PlacementOptions narrows the machines a container may run on. Empty
	// fields do not constrain.
	PlacementOptions struct {
		Provider   string `mapstructure:"provider"`
		Size       string `mapstructure:"size"`
		Region     string `mapstructure:"region"`
		FloatingIP string `mapstructure:"floatingIp"`
	}
)

var (
	rangeType = reflect.TypeOf(spec.Range{})
	valueType = reflect.TypeOf(spec.Value{})
)

// DecodeMachineOptions decodes an untyped option bag, such as one read from
// a blueprint document. Unknown keys and mistyped values are errors.
func DecodeMachineOptions(raw map[string]interface{}) (MachineOptions, error) {
	var opts MachineOptions
	err := decodeOptions("Machine", raw, &opts)
	return opts, err
}

// DecodeContainerOptions is DecodeMachineOptions for containers.
func DecodeContainerOptions(raw map[string]interface{}) (ContainerOptions, error) {
	var opts ContainerOptions
	err := decodeOptions("Container", raw, &opts)
	return opts, err
}

// DecodeInfrastructureOptions is DecodeMachineOptions for infrastructures.
func DecodeInfrastructureOptions(raw map[string]interface{}) (InfrastructureOptions, error) {
	var opts InfrastructureOptions
	err := decodeOptions("Infrastructure", raw, &opts)
	return opts, err
}

// DecodePlacementOptions is DecodeMachineOptions for placements.
func DecodePlacementOptions(raw map[string]interface{}) (PlacementOptions, error) {
	var opts PlacementOptions
	err := decodeOptions("Placement", raw, &opts)
	return opts, err
}

// DecodeRange accepts an integer (boxed to [x, x]) or a {min, max} mapping
// where a missing max means unbounded.
func DecodeRange(raw interface{}) (spec.Range, error) {
	out, err := rangeHook(reflect.TypeOf(raw), rangeType, raw)
	if err != nil {
		return spec.Range{}, stageErr(StageConstruct, err)
	}
	r, ok := out.(spec.Range)
	if !ok {
		return spec.Range{}, stageErrf(StageConstruct, "input must be a number or a range (was %v)", raw)
	}
	return r, nil
}

func decodeOptions(kind string, raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.ComposeDecodeHookFunc(integerHook, rangeHook, valueHook),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return stageErr(StageConstruct, err)
	}
	if err := dec.Decode(raw); err != nil {
		return stageErr(StageConstruct, errors.Wrapf(err, "invalid %s options", kind))
	}
	return nil
}

func rangeHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != rangeType {
		return data, nil
	}

	switch v := data.(type) {
	case spec.Range:
		return v, nil
	case map[string]interface{}:
		var bounds struct {
			Min int  `mapstructure:"min"`
			Max *int `mapstructure:"max"`
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:  integerHook,
			ErrorUnused: true,
			Result:      &bounds,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(v); err != nil {
			return nil, errors.Wrap(err, "invalid range")
		}
		if bounds.Max == nil {
			if bounds.Min < 0 {
				return nil, errors.Errorf("range minimum must not be negative (was %d)", bounds.Min)
			}
			return spec.AtLeast(bounds.Min), nil
		}
		return spec.NewRange(bounds.Min, *bounds.Max)
	}

	n, ok := integer(data)
	if !ok {
		return nil, errors.Errorf("input must be a number or a range (was %v)", data)
	}
	if n < 0 {
		return nil, errors.Errorf("range value must not be negative (was %d)", n)
	}
	return spec.Exactly(n), nil
}

// integerHook rejects fractional numbers bound for integer fields, which
// mapstructure would otherwise truncate.
func integerHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() == reflect.Ptr {
		to = to.Elem()
	}
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch v := data.(type) {
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, errors.Errorf("expected an integer (was %v)", v)
		}
	case float64:
		if v != math.Trunc(v) {
			return nil, errors.Errorf("expected an integer (was %v)", v)
		}
	}
	return data, nil
}

func integer(data interface{}) (int, bool) {
	switch v := data.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

// valueHook accepts a plain string, {secret: NAME}, {runtime: KEY}, or the IR
// forms {nameOfSecret: NAME} and {resourceKey: KEY}.
func valueHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != valueType {
		return data, nil
	}

	switch v := data.(type) {
	case spec.Value:
		return v, nil
	case string:
		return spec.Literal(v), nil
	case map[string]interface{}:
		if len(v) != 1 {
			return nil, errors.Errorf("value must have exactly one of secret or runtime (was %v)", v)
		}
		for k, inner := range v {
			name, ok := inner.(string)
			if !ok {
				return nil, errors.Errorf("%s must name a string (was %v)", k, inner)
			}
			switch k {
			case "secret", "nameOfSecret":
				return spec.Secret(name), nil
			case "runtime", "resourceKey":
				return spec.Runtime(name), nil
			}
			return nil, errors.Errorf("unrecognized value kind %q", k)
		}
	}
	return nil, errors.Errorf("value must be a string, secret, or runtime value (was %v)", data)
}
