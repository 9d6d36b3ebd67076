package training

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Params holds hyperparameters as decoded from JSON. Unknown keys are kept
// but never read.
type Params map[string]any

// Merge returns defaults overlaid with overrides.
func Merge(defaults, overrides map[string]any) Params {
	out := make(Params, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	maps.Copy(out, overrides)
	return out
}

// Has reports whether key is set to a non-null value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// Int reads an integer parameter.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
}

// PositiveInt reads an integer parameter that must be at least 1.
func (p Params) PositiveInt(key string, def int) (int, error) {
	n, err := p.Int(key, def)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidParams, key)
	}
	return n, nil
}

// BoundedInt reads an integer parameter that must lie in [1, limit].
func (p Params) BoundedInt(key string, def, limit int) (int, error) {
	n, err := p.PositiveInt(key, def)
	if err != nil {
		return 0, err
	}
	if n > limit {
		return 0, fmt.Errorf("%w: %s must be at most %d", ErrInvalidParams, key, limit)
	}
	return n, nil
}

// Float reads a numeric parameter.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidParams, key)
	}
	return f, nil
}

// PositiveFloat reads a numeric parameter that must be greater than zero.
func (p Params) PositiveFloat(key string, def float64) (float64, error) {
	f, err := p.Float(key, def)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidParams, key)
	}
	return f, nil
}

// String reads a string parameter.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

// Ints reads a list of positive integers. A single number or a comma
// separated string is accepted as well.
func (p Params) Ints(key string, def []int) ([]int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	var out []int
	add := func(x any) error {
		n, err := Params{key: x}.PositiveInt(key, 0)
		if err != nil {
			return err
		}
		out = append(out, n)
		return nil
	}
	switch list := v.(type) {
	case []int:
		for _, x := range list {
			if err := add(x); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, x := range list {
			if err := add(x); err != nil {
				return nil, err
			}
		}
	case string:
		for _, part := range strings.Split(list, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			if err := add(part); err != nil {
				return nil, err
			}
		}
	default:
		if err := add(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MaxDepth reads max_depth where null or 0 means unlimited.
func (p Params) MaxDepth(def int) (int, error) {
	if v, ok := p["max_depth"]; ok && v == nil {
		return 0, nil
	}
	d, err := p.Int("max_depth", def)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: max_depth must not be negative", ErrInvalidParams)
	}
	return d, nil
}
