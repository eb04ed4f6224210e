package design

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"udesign/pkg/optics"
)

// ParameterError describes one rejected input parameter.
type ParameterError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ParseParameters normalizes a flat input document into quantities keyed by
// parameter name. Quantity parameters honour the "<key>.units" sibling
// convention and default to their declared unit when the sibling is absent.
// Keys the specification does not declare are ignored. Errors are collected
// per parameter and sorted by name.
func (h HostSpec) ParseParameters(doc map[string]any) (map[string]optics.Quantity, []ParameterError) {
	cleaned := make(map[string]optics.Quantity)
	var errs []ParameterError
	fail := func(name, msg string) {
		errs = append(errs, ParameterError{Name: name, Message: msg})
	}
	for _, p := range h.spec.Parameters {
		raw, ok := doc[p.Name]
		if !ok {
			if p.Required {
				fail(p.Name, "required parameter missing")
				continue
			}
			cleaned[p.Name] = p.DefaultQuantity()
			continue
		}
		if raw == nil {
			fail(p.Name, "parameter cannot be null")
			continue
		}
		switch p.Type {
		case ParameterInteger:
			v, err := coerceInteger(raw)
			if err != nil {
				fail(p.Name, err.Error())
				continue
			}
			cleaned[p.Name] = optics.Scalar(float64(v))
		case ParameterNumber:
			v, err := coerceNumber(raw)
			if err != nil {
				fail(p.Name, err.Error())
				continue
			}
			cleaned[p.Name] = optics.Scalar(v)
		case ParameterQuantity:
			v, err := coerceNumber(raw)
			if err != nil {
				fail(p.Name, err.Error())
				continue
			}
			unit := p.Unit
			if rawUnits, present := doc[p.Name+".units"]; present {
				symbol, isString := rawUnits.(string)
				if !isString {
					fail(p.Name, "units entry expects a string symbol")
					continue
				}
				parsed, err := optics.ParseUnit(symbol)
				if err != nil {
					fail(p.Name, err.Error())
					continue
				}
				unit = parsed
			}
			if unit.Dimension() != p.Unit.Dimension() {
				fail(p.Name, fmt.Sprintf("expects a unit of %s, got %q", p.Unit.Dimension(), unit.String()))
				continue
			}
			cleaned[p.Name] = optics.NewQuantity(v, unit)
		}
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Name < errs[j].Name })
	}
	return cleaned, errs
}

func coerceNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, errors.New("expects a number")
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.New("expects a number")
		}
		return parsed, nil
	default:
		return 0, errors.New("expects a number")
	}
}

func coerceInteger(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.New("expects an integer")
		}
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.New("expects an integer")
		}
		return parsed, nil
	default:
		return 0, errors.New("expects an integer")
	}
}
